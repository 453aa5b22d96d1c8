package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// scopeFlags are the hierarchy position flags shared by the query commands.
type scopeFlags struct {
	company    string
	department string
	employee   string
	k          int
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.company, "company", "c", "", "company of the caller (required)")
	cmd.Flags().StringVarP(&f.department, "department", "d", "", "department of the caller")
	cmd.Flags().StringVarP(&f.employee, "employee", "e", "", "employee name (requires --department)")
	cmd.Flags().IntVarP(&f.k, "top-k", "k", 0, "chunks per hierarchy level (default from config)")
	_ = cmd.MarkFlagRequired("company")
}

func (f *scopeFlags) scope() (hierarchy.Scope, error) {
	s := hierarchy.NormalizeScope(hierarchy.Scope{
		Company:    f.company,
		Department: f.department,
		Employee:   f.employee,
	})
	if err := s.Validate(); err != nil {
		return hierarchy.Scope{}, err
	}
	return s, nil
}
