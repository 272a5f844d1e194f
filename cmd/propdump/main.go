// Copyright 2026 The Ecmacore Authors
// This file is part of ecmacore.
//
// ecmacore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ecmacore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ecmacore. If not, see <http://www.gnu.org/licenses/>.

// Command propdump builds a synthetic object, drives it through property
// creation and lookup, and prints the resulting list/hashmap/cache state.
// It exists as a debug aid for exercising the core outside of a full
// embedding, the same role a teacher's standalone diagnostic subcommand
// plays against a much larger state store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ecmacontext "github.com/embedjs/ecmacore/ecma/context"
	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/internal/cptr"
)

var (
	propertyCount int
	verbose       bool
	width32       bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "propdump",
		Short: "Build a synthetic object and dump its property storage state",
		RunE:  runDump,
	}
	root.Flags().IntVar(&propertyCount, "properties", 12, "number of synthetic named-data properties to insert")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging and run the consistency sweep")
	root.Flags().BoolVar(&width32, "width32", true, "use 32-bit compact pointers instead of 16-bit")
	return root
}

func runDump(cmd *cobra.Command, args []string) error {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("propdump: build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg := ecmacontext.DefaultConfig()
	if !width32 {
		cfg.Width = cptr.Width16
		cfg.ArenaSize = 1 << 18
	}
	cfg.Debug = verbose

	ctx, err := ecmacontext.New(cfg, log)
	if err != nil {
		return fmt.Errorf("propdump: create context: %w", err)
	}
	defer ctx.Alloc.Close()

	id, _, err := ctx.CreateObject()
	if err != nil {
		return fmt.Errorf("propdump: create object: %w", err)
	}

	for i := 0; i < propertyCount; i++ {
		name, err := ctx.Strings.Intern(fmt.Sprintf("prop%d", i))
		if err != nil {
			return fmt.Errorf("propdump: intern name: %w", err)
		}
		attrs := property.AttrWritable | property.AttrEnumerable | property.AttrConfigurable
		if _, _, err := ctx.CreateNamedData(id, name, i*i, attrs); err != nil {
			return fmt.Errorf("propdump: create property %d: %w", i, err)
		}
	}

	fmt.Printf("object %d: %d properties, hashmap attached: %v\n", uint32(id), ctx.List(id).LiveNamedCount(), ctx.List(id).HasHashmap())

	for i := 0; i < propertyCount; i++ {
		name, err := ctx.Strings.Intern(fmt.Sprintf("prop%d", i))
		if err != nil {
			return err
		}
		rec, slot, ok := ctx.Find(id, name)
		if !ok {
			fmt.Printf("  %s: NOT FOUND\n", name.String())
			continue
		}
		fmt.Printf("  %s @slot %d = %v (lcached=%v)\n", name.String(), slot, rec.Value(), rec.IsLCached())
	}

	if trail := ctx.Cache.EvictionTrail(); len(trail) > 0 {
		fmt.Printf("lookup cache evictions (newest first): %d entries\n", len(trail))
	}

	if verbose {
		if problems := ctx.DebugSweep(); len(problems) > 0 {
			fmt.Println("consistency sweep found issues:")
			for _, p := range problems {
				fmt.Println("  " + p)
			}
		} else {
			fmt.Println("consistency sweep: clean")
		}
	}

	return nil
}
