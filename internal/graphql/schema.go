// Package graphql serves the cart API with gqlgen. Documents are parsed and
// validated by gqlparser against the embedded schema; exec.go dispatches each
// field to the resolvers in resolvers.go.
package graphql

//go:generate go run github.com/99designs/gqlgen generate --config ../../gqlgen.yml

import (
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSource string

// Schema is parsed once at startup; a malformed schema panics.
var Schema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSource})
