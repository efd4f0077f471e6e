// Package graphql rewrites bulk export queries before submission: variable
// references are replaced with string literals and variable declarations are
// stripped, producing a self-contained query the platform can run without a
// variables payload.
package graphql

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// Format prints the query with every variable reference whose name appears in
// variables replaced by a string literal of the mapped value. Variable
// declarations are removed from every operation regardless of whether they
// were substituted. With a nil or empty map the parsed query is printed
// unchanged.
//
// Known limitation: a variable referenced in the body but absent from the map
// is left as a dangling reference while its declaration is still stripped,
// which yields a structurally invalid document. Callers must supply a value
// for every referenced variable.
func Format(query string, variables map[string]string) (string, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "bulk query", Input: query})
	if perr != nil {
		return "", fmt.Errorf("parse query: %w", perr)
	}

	if len(variables) > 0 {
		for _, op := range doc.Operations {
			substituteDirectives(op.Directives, variables)
			substituteSelectionSet(op.SelectionSet, variables)
			op.VariableDefinitions = nil
		}
		for _, frag := range doc.Fragments {
			substituteDirectives(frag.Directives, variables)
			substituteSelectionSet(frag.SelectionSet, variables)
		}
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String(), nil
}

func substituteSelectionSet(set ast.SelectionSet, variables map[string]string) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				substituteValue(arg.Value, variables)
			}
			substituteDirectives(s.Directives, variables)
			substituteSelectionSet(s.SelectionSet, variables)
		case *ast.InlineFragment:
			substituteDirectives(s.Directives, variables)
			substituteSelectionSet(s.SelectionSet, variables)
		case *ast.FragmentSpread:
			substituteDirectives(s.Directives, variables)
		}
	}
}

func substituteDirectives(directives ast.DirectiveList, variables map[string]string) {
	for _, d := range directives {
		for _, arg := range d.Arguments {
			substituteValue(arg.Value, variables)
		}
	}
}

// substituteValue rewrites a variable reference into a string literal in
// place. List and object values are walked recursively; all other kinds are
// already literals.
func substituteValue(v *ast.Value, variables map[string]string) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.Variable:
		if replacement, ok := variables[v.Raw]; ok {
			v.Kind = ast.StringValue
			v.Raw = replacement
			v.VariableDefinition = nil
		}
	case ast.ListValue, ast.ObjectValue:
		for _, child := range v.Children {
			substituteValue(child.Value, variables)
		}
	}
}
