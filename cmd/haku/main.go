// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmarkelov/haku"
)

// candidateTaskfiles is the search order used when -f is not given (§6
// "Default taskfile discovery"): Windows looks for Taskfile/Hakufile only;
// everything else also tries the lowercase spellings.
func candidateTaskfiles() []string {
	if runtime.GOOS == "windows" {
		return []string{"Taskfile", "Hakufile"}
	}
	return []string{"Taskfile", "taskfile", "Hakufile", "hakufile"}
}

func discoverTaskfile() (string, error) {
	for _, name := range candidateTaskfiles() {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no taskfile found (looked for %s)", strings.Join(candidateTaskfiles(), ", "))
}

func main() {
	var (
		file         string
		verbosity    int
		dryRun       bool
		listRecipes  bool
		listAll      bool
		listFeatures bool
		featureCSV   string
		showName     string
	)

	root := &cobra.Command{
		Use:           "haku [recipe] [args...]",
		Short:         "haku runs recipes declared in a Taskfile",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       "0.1.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				var err error
				path, err = discoverTaskfile()
				if err != nil {
					return err
				}
			}

			var feats []string
			if featureCSV != "" {
				feats = strings.Split(featureCSV, ",")
			}
			opts := haku.NewRunOpts().WithFeats(feats).WithVerbosity(verbosity).WithDryRun(dryRun)

			log := haku.NewLogger(verbosity)
			e := haku.NewEngine(opts, log)
			if err := e.LoadFile(path); err != nil {
				return err
			}

			switch {
			case listFeatures:
				for _, f := range e.UserFeatures() {
					fmt.Println(f)
				}
				return nil

			case listRecipes || listAll:
				printRecipeList(e, listAll)
				return nil

			case showName != "":
				content, err := e.RecipeContent(showName)
				if err != nil {
					return err
				}
				fmt.Print(content)
				return nil
			}

			var name string
			var freeArgs []string
			if len(args) > 0 {
				name, freeArgs = args[0], args[1:]
			}
			return e.Run(name, freeArgs)
		},
	}

	root.Flags().StringVarP(&file, "file", "f", "", "taskfile to read")
	root.Flags().CountVarP(&verbosity, "verbose", "v", "increase output verbosity (repeatable)")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "print commands without executing them")
	root.Flags().BoolVarP(&listRecipes, "list", "l", false, "list available recipes")
	root.Flags().BoolVarP(&listAll, "all", "a", false, "include disabled recipes in --list")
	root.Flags().BoolVar(&listFeatures, "list-features", false, "list every feature name referenced by guards")
	root.Flags().StringVar(&featureCSV, "feature", "", "comma-separated list of enabled feature names")
	root.Flags().StringVar(&showName, "show", "", "print one recipe's source and exit")
	root.Flags().SetInterspersed(false)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "haku: %s\n", err)
		os.Exit(1)
	}
}

func printRecipeList(e *haku.Engine, all bool) {
	for _, d := range e.Recipes() {
		fmt.Println(formatRecipeDesc(d))
	}
	if all {
		for _, d := range e.DisabledRecipes() {
			fmt.Println(formatRecipeDesc(d))
		}
	}
}

// formatRecipeDesc renders "name (var1,var2,) [dep1,dep2,] #desc" per §3's
// RecipeDesc display form.
func formatRecipeDesc(d haku.RecipeDesc) string {
	var argList, depList string
	for _, a := range d.Args {
		n := a.Name
		if a.Variadic {
			n = "+" + n
		}
		argList += n + ","
	}
	for _, dep := range d.Deps {
		depList += dep + ","
	}
	line := fmt.Sprintf("%s (%s) [%s]", d.Name, argList, depList)
	if d.Desc != "" {
		line += " #" + d.Desc
	}
	if !d.Enabled && d.Feat != "" {
		line += " (disabled: " + d.Feat + ")"
	}
	return line
}
