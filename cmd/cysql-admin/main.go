// Command cysql-admin is a minimal operator CLI over the administrative
// operations of spec §6.4 (load/list/remove a named graph schema) plus an
// ad-hoc Explain command for inspecting the SQL a query would compile to,
// wired straight to the config and engine packages.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/genezhang/clickgraph/config"
	"github.com/genezhang/clickgraph/engine"
	"github.com/genezhang/clickgraph/sql/catalog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cat := catalog.New()
	eng := engine.New(cat, nil, 0)

	switch os.Args[1] {
	case "load-schema":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cysql-admin load-schema <config.yaml>")
			os.Exit(1)
		}
		runLoadSchema(cat, os.Args[2])
	case "list-schemas":
		runListSchemas(eng)
	case "remove-schema":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cysql-admin remove-schema <name>")
			os.Exit(1)
		}
		runRemoveSchema(eng, os.Args[2])
	case "explain":
		if len(os.Args) < 4 {
			fmt.Println("Usage: cysql-admin explain <config.yaml> <cypher-query>")
			os.Exit(1)
		}
		runExplain(cat, eng, os.Args[2], os.Args[3])
	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: cysql-admin <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  load-schema <config.yaml>           - register every schema declared in a config file")
	fmt.Println("  list-schemas                        - list registered schema names")
	fmt.Println("  remove-schema <name>                - unregister a schema")
	fmt.Println("  explain <config.yaml> <query>        - load a config and print the SQL a query compiles to")
}

func runLoadSchema(cat *catalog.Catalog, path string) {
	if err := config.LoadInto(cat, path); err != nil {
		logrus.WithError(err).Fatal("failed to load schema config")
	}
	fmt.Println("loaded:", cat.ListSchemas())
}

func runListSchemas(eng *engine.Engine) {
	for _, name := range eng.ListSchemas() {
		fmt.Println(name)
	}
}

func runRemoveSchema(eng *engine.Engine, name string) {
	if err := eng.RemoveSchema(name); err != nil {
		logrus.WithError(err).Fatal("failed to remove schema")
	}
	fmt.Println("removed:", name)
}

func runExplain(cat *catalog.Catalog, eng *engine.Engine, configPath, query string) {
	if err := config.LoadInto(cat, configPath); err != nil {
		logrus.WithError(err).Fatal("failed to load schema config")
	}
	sqlText, err := eng.Explain(context.Background(), query, "")
	if err != nil {
		logrus.WithError(err).Fatal("failed to compile query")
	}
	fmt.Println(sqlText)
}
