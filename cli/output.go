package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/astralux/licensing/pkg/license"
	"github.com/spf13/cobra"
)

type printer struct {
	w io.Writer
}

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p printer) field(name string, value any) {
	fmt.Fprintf(p.w, "%-16s %v\n", name+":", value)
}

// print writes v as indented JSON with --json, otherwise runs text.
func (o *cliOptions) print(cmd *cobra.Command, v any, text func(printer)) error {
	out := cmd.OutOrStdout()
	if o.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(printer{w: out})
	return nil
}

func printShareReport(p printer, r license.ShareReport) {
	p.field("License", r.LicenseKey)
	p.field("Classification", r.Classification)
	p.field("Distinct HWIDs", r.DistinctHwids)
	p.field("Distinct IPs", r.DistinctIPs)
	sample := "-"
	if len(r.SampleHwids) > 0 {
		sample = strings.Join(r.SampleHwids, ", ")
	}
	p.field("Sample HWIDs", sample)
}

func printLicense(p printer, l license.License) {
	p.field("License", l.Key)
	status := "active"
	if l.Revoked {
		status = "revoked"
	}
	p.field("Status", status)
	p.field("Owner", orDash(l.OwnerIdentity))
	p.field("HWID", orDash(l.Hwid))
	p.field("Resets left", l.HwidResetsRemaining)
	p.field("Created", l.CreatedAt.UTC().Format(time.RFC3339))
	activated := "-"
	if l.ActivatedAt != nil {
		activated = l.ActivatedAt.UTC().Format(time.RFC3339)
	}
	p.field("Activated", activated)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
