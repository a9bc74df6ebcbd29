package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the program store",
	}

	put := &cobra.Command{
		Use:   "put NAME [files...]",
		Short: "Assemble files (or the project) and store the program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProgram(args[1:], "")
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.Put(args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s revision %s\n", rec.Name, rec.Revision)
			return nil
		},
	}

	var output string
	get := &cobra.Command{
		Use:   "get NAME",
		Short: "Write a stored program to an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p, _, err := s.Get(args[0])
			if err != nil {
				return err
			}
			out := output
			if out == "" {
				out = args[0] + ImageExt
			}
			n, err := writeImage(out, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", out, n)
			return nil
		},
	}
	get.Flags().StringVarP(&output, "output", "o", "", "image path (default: NAME.nbc)")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored programs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENTRY\tFUNCS\tINSTRS\tBYTES\tUPDATED\tREVISION")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					r.Name, r.Entry, r.Functions, r.Instructions, r.Size,
					r.Updated.Local().Format(time.DateTime), r.Revision)
			}
			return tw.Flush()
		},
	}

	rm := &cobra.Command{
		Use:     "rm NAME...",
		Aliases: []string{"delete"},
		Short:   "Delete stored programs",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			for _, name := range args {
				if err := s.Delete(name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(put, get, list, rm)
	return cmd
}
