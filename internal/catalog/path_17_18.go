package catalog

// Upgrade path for generation 17 databases.
var path17to18 = &Path{
	ID:            "17-to-18",
	SourcePrefix:  "17.",
	SourceVersion: "17.0",
	TargetVersion: "18.0",
	RequiredTables: []string{
		"res_partner",
		"res_users",
		"res_company",
		"ir_module_module",
		"ir_config_parameter",
		"ir_model_data",
	},
	scripts: []Script{
		{
			ID:          "17-18-010-reset-module-states",
			Name:        "Reset pending module states",
			Description: "Clears queued install/upgrade/removal flags before the jump to 18.",
			Order:       10,
			SQL: `UPDATE ir_module_module
   SET state = CASE WHEN state IN ('to install', 'to remove') THEN 'uninstalled' ELSE 'installed' END
 WHERE state IN ('to install', 'to upgrade', 'to remove')`,
		},
		{
			ID:          "17-18-020-partner-contact-type",
			Name:        "Collapse legacy partner contact types",
			Description: "Generation 18 dropped the 'private' address type.",
			Order:       20,
			PreCheck:    `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'res_partner' AND column_name = 'type')`,
			SQL:         `UPDATE res_partner SET type = 'contact' WHERE type = 'private'`,
			PostCheck:   `SELECT NOT EXISTS (SELECT 1 FROM res_partner WHERE type = 'private')`,
		},
		{
			ID:          "17-18-030-drop-mail-shortcode",
			Name:        "Drop mail_shortcode",
			Description: "Canned responses moved to a new model in 18.",
			Order:       30,
			SQL:         `DROP TABLE IF EXISTS mail_shortcode CASCADE`,
			PostCheck:   `SELECT to_regclass('public.mail_shortcode') IS NULL`,
		},
		{
			ID:          "17-18-040-avatar-color-column",
			Name:        "Seed partner avatar colors",
			Description: "New NOT NULL-by-convention column on res_partner.",
			Order:       40,
			SQL:         `ALTER TABLE res_partner ADD COLUMN IF NOT EXISTS color integer DEFAULT 0`,
		},
		{
			ID:          "17-18-050-users-notification-type",
			Name:        "Normalize user notification preference",
			Description: "The 'inbox only' preference was folded into 'email'.",
			Order:       50,
			PreCheck:    `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'res_users' AND column_name = 'notification_type')`,
			SQL:         `UPDATE res_users SET notification_type = 'email' WHERE notification_type IS NULL OR notification_type = 'inbox'`,
		},
		{
			ID:          "17-18-060-company-font-cleanup",
			Name:        "Reset unavailable report fonts",
			Description: "Fonts removed from the 18 report engine fall back to the default.",
			Order:       60,
			PreCheck:    `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'res_company' AND column_name = 'font')`,
			SQL:         `UPDATE res_company SET font = 'Lato' WHERE font IN ('Helvetica', 'Times')`,
		},
		{
			ID:          "17-18-070-uninstall-removed-modules",
			Name:        "Mark removed modules uninstallable",
			Description: "Modules dropped from the 18 distribution.",
			Order:       70,
			SQL: `UPDATE ir_module_module
   SET state = 'uninstallable'
 WHERE name IN ('l10n_fr_fec_import', 'website_twitter', 'project_forecast')
   AND state = 'installed'`,
		},
		{
			ID:          "17-18-080-drop-obsolete-wizards",
			Name:        "Drop transient wizard tables",
			Description: "Rebuilt by the target release on first boot.",
			Order:       80,
			SQL: `DO $$
DECLARE t text;
BEGIN
  FOR t IN SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename LIKE 'base_import_%'
  LOOP
    EXECUTE format('DROP TABLE IF EXISTS %I CASCADE', t);
  END LOOP;
END $$`,
		},
		{
			ID:          "17-18-090-clear-assets-cache",
			Name:        "Clear compiled asset attachments",
			Description: "Cached bundles reference 17-era files.",
			Order:       90,
			PreCheck:    `SELECT to_regclass('public.ir_attachment') IS NOT NULL`,
			SQL:         `DELETE FROM ir_attachment WHERE url LIKE '/web/assets/%'`,
		},
		{
			ID:          "17-18-100-refresh-base-version",
			Name:        "Refresh base module version",
			Description: "The base module row mirrors the platform generation.",
			Order:       100,
			SQL: `UPDATE ir_module_module
   SET latest_version = '18.0.1.0'
 WHERE name = 'base'`,
			PostCheck: `SELECT NOT EXISTS (SELECT 1 FROM ir_module_module WHERE name = 'base' AND latest_version NOT LIKE '18.%')`,
		},
		{
			ID:          "17-18-110-set-version-marker",
			Name:        "Set schema version marker",
			Description: "Records 18.0 as the database's schema generation.",
			Order:       110,
			SQL: `INSERT INTO ir_config_parameter (key, value)
VALUES ('schema_version', '18.0')
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			PostCheck: `SELECT EXISTS (SELECT 1 FROM ir_config_parameter WHERE key = 'schema_version' AND value = '18.0')`,
		},
	},
}
