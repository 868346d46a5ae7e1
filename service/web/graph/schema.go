package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"

	"github.com/99designs/gqlgen/graphql"
	"github.com/juju/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// Схема только для чтения. Результат резолвера сериализуется в JSON и из него
// выбираются запрошенные поля, поэтому имена полей схемы совпадают с JSON-тегами моделей
type executableSchema struct {
	resolver *Resolver
}

// NewExecutableSchema схема для handler.New
func NewExecutableSchema(resolver *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: resolver}
}

func (m *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (m *executableSchema) Complexity(typeName, field string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (m *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	if opCtx.Operation.Operation != ast.Query {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "поддерживаются только запросы"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		data, errs := m.query(ctx, opCtx)
		return &graphql.Response{Data: data, Errors: errs}
	}
}

func (m *executableSchema) query(ctx context.Context, opCtx *graphql.OperationContext) (json.RawMessage, gqlerror.List) {
	var errs gqlerror.List
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, field := range graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Query"}) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(buf, field.Alias)
		if err := m.field(ctx, opCtx, buf, field); err != nil {
			errs = append(errs, gqlerror.Errorf("%s: %s", field.Alias, err.Error()))
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), errs
}

// Значение корневого поля
func (m *executableSchema) field(ctx context.Context, opCtx *graphql.OperationContext, buf *bytes.Buffer, field graphql.CollectedField) error {
	switch field.Name {
	case "__typename":
		writeValue(buf, "Query")
		return nil
	case "__schema", "__type":
		return errors.NotSupportedf("интроспекция")
	}

	result, err := m.resolver.Query(ctx, field.Name, field.ArgumentMap(opCtx.Variables))
	if err != nil {
		if !errors.IsNotValid(err) && !errors.IsNotSupported(err) {
			m.resolver.log.Errorf("запрос %s: %v", field.Name, errors.ErrorStack(err))
			return errors.New("внутренняя ошибка сервера")
		}
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errors.Trace(err)
	}
	var tree interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return errors.Trace(err)
	}
	project(opCtx, buf, tree, field.Definition.Type, field.Selections)
	return nil
}

// Выбирает из value поля, запрошенные в sel. Листовые значения пишутся как есть
func project(opCtx *graphql.OperationContext, buf *bytes.Buffer, value interface{}, typ *ast.Type, sel ast.SelectionSet) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case []interface{}:
		if len(sel) == 0 || typ.Elem == nil {
			writeValue(buf, v)
			return
		}
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			project(opCtx, buf, item, typ.Elem, sel)
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		if len(sel) == 0 {
			writeValue(buf, v)
			return
		}
		typeName := typ.Name()
		buf.WriteByte('{')
		for i, field := range graphql.CollectFields(opCtx, sel, []string{typeName}) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeKey(buf, field.Alias)
			if field.Name == "__typename" {
				writeValue(buf, typeName)
				continue
			}
			project(opCtx, buf, v[field.Name], field.Definition.Type, field.Selections)
		}
		buf.WriteByte('}')
	default:
		writeValue(buf, v)
	}
}

func writeKey(buf *bytes.Buffer, key string) {
	writeValue(buf, key)
	buf.WriteByte(':')
}

func writeValue(buf *bytes.Buffer, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(raw)
}
