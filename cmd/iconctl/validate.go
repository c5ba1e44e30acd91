package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"iconstudio/internal/apperr"
	"iconstudio/internal/layerir"
)

type validateResult struct {
	File       string   `json:"file"`
	Valid      bool     `json:"valid"`
	DocID      string   `json:"docId,omitempty"`
	Head       string   `json:"head,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

var errInvalid = errors.New("document is invalid")

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document.json>...",
		Short: "Check Layer IR documents against the schema and invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]validateResult, 0, len(args))
			failed := false
			for _, path := range args {
				res := validateFile(path)
				failed = failed || !res.Valid
				results = append(results, res)
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Valid {
						fmt.Fprintf(out, "%s: ok (%s at %s)\n", r.File, r.DocID, r.Head)
						continue
					}
					fmt.Fprintf(out, "%s: %d violation(s)\n", r.File, len(r.Violations))
					for _, v := range r.Violations {
						fmt.Fprintf(out, "  - %s\n", v)
					}
				}
			}
			if failed {
				return errInvalid
			}
			return nil
		},
	}
}

func validateFile(path string) validateResult {
	res := validateResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Violations = []string{err.Error()}
		return res
	}
	doc, err := layerir.Load(data)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && len(ae.Details) > 0 {
			res.Violations = ae.Details
		} else {
			res.Violations = []string{err.Error()}
		}
		return res
	}
	res.Valid = true
	res.DocID = doc.DocID
	res.Head = doc.Head().VersionID
	return res
}
