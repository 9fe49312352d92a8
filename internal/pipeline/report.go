package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// FormatReport renders the durable plain-text audit trail for a run.
func FormatReport(res *Result) string {
	var b strings.Builder

	b.WriteString("dumplift migration report\n")
	b.WriteString("=========================\n\n")
	if res.Success {
		b.WriteString("Status: Success\n")
	} else {
		b.WriteString("Status: Failed\n")
	}
	fmt.Fprintf(&b, "Source version: %s\n", orDash(res.SourceVersion))
	fmt.Fprintf(&b, "Target version: %s\n", orDash(res.TargetVersion))
	fmt.Fprintf(&b, "Total duration: %s\n", res.Duration.Round(time.Millisecond))

	if res.Report != nil && len(res.Report.PhaseTimings) > 0 {
		b.WriteString("\nPhase timings\n-------------\n")
		for _, pt := range res.Report.PhaseTimings {
			fmt.Fprintf(&b, "  %-16s %s\n", pt.Phase, pt.Duration.Round(time.Millisecond))
		}
	}

	if res.Report != nil && len(res.Report.Scripts) > 0 {
		b.WriteString("\nScripts\n-------\n")
		for _, s := range res.Report.Scripts {
			line := fmt.Sprintf("  %-36s %-8s %s", s.ID, s.Status, s.Duration.Round(time.Millisecond))
			if s.Error != "" {
				line += "  " + s.Error
			}
			b.WriteString(line + "\n")
		}
	}

	if res.Report != nil {
		st := res.Report.Stats
		b.WriteString("\nStatistics\n----------\n")
		fmt.Fprintf(&b, "  Tables:            %d\n", st.TableCount)
		fmt.Fprintf(&b, "  Modules installed: %d of %d\n", st.ModulesInstalled, st.ModulesTotal)
		fmt.Fprintf(&b, "  Partners:          %d\n", st.PartnerCount)
		fmt.Fprintf(&b, "  Users:             %d\n", st.UserCount)
	}

	if len(res.Warnings) > 0 {
		b.WriteString("\nWarnings\n--------\n")
		for _, w := range res.Warnings {
			b.WriteString("  - " + w + "\n")
		}
	}

	if len(res.Errors) > 0 {
		b.WriteString("\nErrors\n------\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  - [%s] %s\n", e.Phase, e.Message)
		}
	}

	return b.String()
}

// WriteReport writes the report file next to the output archive.
func WriteReport(path string, res *Result) error {
	if err := os.WriteFile(path, []byte(FormatReport(res)), 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
