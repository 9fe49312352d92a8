package catalog

// Upgrade path for generation 16 databases. Scripts are written to be
// idempotent: structural changes are guarded by pre-checks, data fixes only
// touch rows still in the old shape.
var path16to17 = &Path{
	ID:            "16-to-17",
	SourcePrefix:  "16.",
	SourceVersion: "16.0",
	TargetVersion: "17.0",
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
			ID:          "16-17-010-reset-module-states",
			Name:        "Reset pending module states",
			Description: "Clears queued install/upgrade/removal flags so the target release rebuilds its own module plan.",
			Order:       10,
			SQL: `UPDATE ir_module_module
   SET state = CASE WHEN state IN ('to install', 'to remove') THEN 'uninstalled' ELSE 'installed' END
 WHERE state IN ('to install', 'to upgrade', 'to remove')`,
		},
		{
			ID:          "16-17-020-rename-mail-channel",
			Name:        "Rename mail_channel to discuss_channel",
			Description: "Generation 17 moved channels out of the mail namespace.",
			Order:       20,
			PreCheck:    `SELECT to_regclass('public.mail_channel') IS NOT NULL AND to_regclass('public.discuss_channel') IS NULL`,
			SQL:         `ALTER TABLE mail_channel RENAME TO discuss_channel`,
			PostCheck:   `SELECT to_regclass('public.discuss_channel') IS NOT NULL`,
		},
		{
			ID:          "16-17-030-rename-mail-channel-member",
			Name:        "Rename mail_channel_member to discuss_channel_member",
			Description: "Companion rename for channel membership rows.",
			Order:       30,
			PreCheck:    `SELECT to_regclass('public.mail_channel_member') IS NOT NULL AND to_regclass('public.discuss_channel_member') IS NULL`,
			SQL:         `ALTER TABLE mail_channel_member RENAME TO discuss_channel_member`,
			PostCheck:   `SELECT to_regclass('public.discuss_channel_member') IS NOT NULL`,
		},
		{
			ID:          "16-17-040-remap-channel-model-data",
			Name:        "Remap channel rows in ir_model_data",
			Description: "Keeps external identifiers resolvable after the channel renames.",
			Order:       40,
			SQL: `UPDATE ir_model_data
   SET model = REPLACE(model, 'mail.channel', 'discuss.channel')
 WHERE model LIKE 'mail.channel%'`,
		},
		{
			ID:          "16-17-050-partner-complete-name",
			Name:        "Backfill res_partner.complete_name",
			Description: "The 17 ORM stores the computed display name; old rows carry NULL.",
			Order:       50,
			PreCheck:    `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'res_partner' AND column_name = 'complete_name')`,
			SQL: `UPDATE res_partner
   SET complete_name = COALESCE(name, '')
 WHERE complete_name IS NULL`,
		},
		{
			ID:          "16-17-060-drop-ir-translation",
			Name:        "Drop legacy ir_translation remnants",
			Description: "Translations live in jsonb columns now; the legacy table is dead weight.",
			Order:       60,
			SQL:         `DROP TABLE IF EXISTS ir_translation CASCADE`,
			PostCheck:   `SELECT to_regclass('public.ir_translation') IS NULL`,
		},
		{
			ID:          "16-17-070-users-share-default",
			Name:        "Normalize res_users.share",
			Description: "NULL share flags break the 17 access machinery.",
			Order:       70,
			SQL:         `UPDATE res_users SET share = false WHERE share IS NULL`,
		},
		{
			ID:          "16-17-080-attachment-store-fname",
			Name:        "Trim attachment store paths",
			Description: "Absolute filestore paths from old producers become relative.",
			Order:       80,
			PreCheck:    `SELECT to_regclass('public.ir_attachment') IS NOT NULL`,
			SQL: `UPDATE ir_attachment
   SET store_fname = regexp_replace(store_fname, '^.*filestore/[^/]+/', '')
 WHERE store_fname LIKE '/%'`,
		},
		{
			ID:          "16-17-090-company-partner-link",
			Name:        "Repair company partner links",
			Description: "Companies detached from their partner record cannot be loaded by 17.",
			Order:       90,
			SQL: `UPDATE res_company c
   SET partner_id = p.id
  FROM res_partner p
 WHERE c.partner_id IS NULL
   AND p.company_id = c.id
   AND p.is_company`,
		},
		{
			ID:          "16-17-100-drop-obsolete-wizards",
			Name:        "Drop transient wizard tables",
			Description: "Transient model tables are rebuilt by the target release on first boot.",
			Order:       100,
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
			ID:          "16-17-110-uninstall-removed-modules",
			Name:        "Mark removed modules uninstallable",
			Description: "Modules dropped from the 17 distribution must not stay 'installed'.",
			Order:       110,
			SQL: `UPDATE ir_module_module
   SET state = 'uninstallable'
 WHERE name IN ('mail_channel_autojoin', 'website_theme_install', 'account_facturx')
   AND state = 'installed'`,
		},
		{
			ID:          "16-17-120-sequence-ownership",
			Name:        "Reattach orphaned sequences",
			Description: "Sequences detached by partial restores confuse the 17 ORM's id allocation.",
			Order:       120,
			SQL: `DO $$
DECLARE r record;
BEGIN
  FOR r IN
    SELECT c.relname AS seq, t.relname AS tbl
      FROM pg_class c
      JOIN pg_class t ON t.relname = left(c.relname, length(c.relname) - length('_id_seq'))
     WHERE c.relkind = 'S' AND c.relname LIKE '%_id_seq' AND t.relkind = 'r'
  LOOP
    EXECUTE format('ALTER SEQUENCE %I OWNED BY %I.id', r.seq, r.tbl);
  END LOOP;
END $$`,
		},
		{
			ID:          "16-17-130-clear-assets-cache",
			Name:        "Clear compiled asset attachments",
			Description: "Cached asset bundles reference 16-era files and are regenerated on demand.",
			Order:       130,
			PreCheck:    `SELECT to_regclass('public.ir_attachment') IS NOT NULL`,
			SQL:         `DELETE FROM ir_attachment WHERE url LIKE '/web/assets/%'`,
		},
		{
			ID:          "16-17-140-refresh-base-version",
			Name:        "Refresh base module version",
			Description: "The base module row mirrors the platform generation.",
			Order:       140,
			SQL: `UPDATE ir_module_module
   SET latest_version = '17.0.1.0'
 WHERE name = 'base'`,
			PostCheck: `SELECT NOT EXISTS (SELECT 1 FROM ir_module_module WHERE name = 'base' AND latest_version NOT LIKE '17.%')`,
		},
		{
			ID:          "16-17-150-set-version-marker",
			Name:        "Set schema version marker",
			Description: "Records 17.0 as the database's schema generation.",
			Order:       150,
			SQL: `INSERT INTO ir_config_parameter (key, value)
VALUES ('schema_version', '17.0')
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			PostCheck: `SELECT EXISTS (SELECT 1 FROM ir_config_parameter WHERE key = 'schema_version' AND value = '17.0')`,
		},
	},
}
