package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/config"
	"github.com/tjfontaine/polyglot-chat/internal/stream"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List configured backends and available backend types",
	RunE:  runBackends,
}

func runBackends(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Configured backends"))
	for _, b := range cfg.Backends {
		marker := " "
		if b.DisplayName() == cfg.DefaultBackend {
			marker = "*"
		}
		status := okStyle.Render("ready")
		if f, ok := backend.GetFactory(b.Type); !ok {
			status = errorStyle.Render("unknown type")
		} else if f.ValidateConfig != nil {
			if err := f.ValidateConfig(b); err != nil {
				status = errorStyle.Render(err.Error())
			}
		}
		fmt.Fprintf(out, "%s %-12s %-18s %-28s %s\n", marker, b.DisplayName(), b.Type, b.Model, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Backend types"))
	for _, f := range backend.ListFactories() {
		fmt.Fprintf(out, "  %-18s %s\n", f.Type, dimStyle.Render(f.Description))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Stream formats"))
	for _, format := range stream.Formats() {
		fmt.Fprintf(out, "  %s\n", format)
	}
	fmt.Fprintf(out, "  %s\n", dimStyle.Render("other formats must emit canonical chunks"))
	return nil
}
