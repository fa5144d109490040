package graphql

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/99designs/gqlgen/graphql"
	"github.com/fjod/cartql/internal/domain"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// NewExecutableSchema creates an ExecutableSchema from the ResolverRoot interface.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{
		schema:    Schema,
		resolvers: cfg.Resolvers,
	}
}

type Config struct {
	Resolvers ResolverRoot
}

type ResolverRoot interface {
	Cart() CartResolver
	CartItem() CartItemResolver
	Money() MoneyResolver
	Mutation() MutationResolver
	Query() QueryResolver
}

type CartResolver interface {
	TotalItems(ctx context.Context, obj *domain.Cart) (int32, error)
	SubTotal(ctx context.Context, obj *domain.Cart, currency *CurrencyCode) (*domain.Money, error)
}
type CartItemResolver interface {
	Quantity(ctx context.Context, obj *domain.CartItem) (int32, error)
	UnitTotal(ctx context.Context, obj *domain.CartItem, currency *CurrencyCode) (*domain.Money, error)
	LineTotal(ctx context.Context, obj *domain.CartItem, currency *CurrencyCode) (*domain.Money, error)
}
type MoneyResolver interface {
	Amount(ctx context.Context, obj *domain.Money) (int32, error)
}
type MutationResolver interface {
	AddItem(ctx context.Context, input AddToCartInput) (*domain.Cart, error)
	RemoveItem(ctx context.Context, input RemoveFromCartInput) (*domain.Cart, error)
	IncreaseCartItem(ctx context.Context, input IncreaseCartItemInput) (*domain.Cart, error)
	DecreaseCartItem(ctx context.Context, input DecreaseCartItemInput) (*domain.Cart, error)
	CreateCheckoutSession(ctx context.Context, input CreateCheckoutSessionInput) (*domain.CheckoutSession, error)
}
type QueryResolver interface {
	Cart(ctx context.Context, id string) (*domain.Cart, error)
}

type executableSchema struct {
	schema    *ast.Schema
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(_ context.Context, _, _ string, _ int, _ map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	ec := executionContext{opCtx, e}
	first := true

	var root func(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler
	switch opCtx.Operation.Operation {
	case ast.Query:
		root = ec._Query
	case ast.Mutation:
		root = ec._Mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false

		data := root(ctx, opCtx.Operation.SelectionSet)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type executionContext struct {
	*graphql.OperationContext
	*executableSchema
}

func unmarshalID(name string, v any) (string, error) {
	if v == nil {
		return "", domain.NewValidationf("Invalid %s", name)
	}
	id, err := graphql.UnmarshalID(v)
	if err != nil {
		return "", domain.NewValidationf("Invalid %s: %v", name, err)
	}
	return id, nil
}

func unmarshalString(name string, v any) (string, error) {
	if v == nil {
		return "", domain.NewValidationf("Invalid %s", name)
	}
	s, err := graphql.UnmarshalString(v)
	if err != nil {
		return "", domain.NewValidationf("Invalid %s: %v", name, err)
	}
	return s, nil
}

func unmarshalOString(name string, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := unmarshalString(name, v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// unmarshalInt rejects anything outside the signed 32-bit range of a GraphQL Int.
func unmarshalInt(name string, v any) (int32, error) {
	if v == nil {
		return 0, domain.NewValidationf("Invalid %s", name)
	}
	n, err := graphql.UnmarshalInt64(v)
	if err != nil {
		return 0, domain.NewValidationf("Invalid %s: %v", name, err)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, domain.NewValidationf("Invalid %s: Int cannot represent %d", name, n)
	}
	return int32(n), nil
}

func unmarshalOInt(name string, v any) (*int32, error) {
	if v == nil {
		return nil, nil
	}
	n, err := unmarshalInt(name, v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func unmarshalOCurrencyCode(v any) (*CurrencyCode, error) {
	if v == nil {
		return nil, nil
	}
	var res CurrencyCode
	if err := res.UnmarshalGQL(v); err != nil {
		return nil, domain.NewValidationf("Invalid currency: %v", err)
	}
	return &res, nil
}

func inputObject(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, domain.NewValidation("Invalid input")
	}
	return obj, nil
}

func unmarshalInputAddToCartInput(v any) (AddToCartInput, error) {
	var it AddToCartInput
	obj, err := inputObject(v)
	if err != nil {
		return it, err
	}

	asMap := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		asMap[k] = v
	}
	if _, present := asMap["quantity"]; !present {
		asMap["quantity"] = 1
	}

	for k, v := range asMap {
		switch k {
		case "cartId":
			it.CartID, err = unmarshalID(k, v)
		case "id":
			it.ID, err = unmarshalID(k, v)
		case "name":
			it.Name, err = unmarshalString(k, v)
		case "description":
			it.Description, err = unmarshalOString(k, v)
		case "image":
			it.Image, err = unmarshalOString(k, v)
		case "price":
			it.Price, err = unmarshalInt(k, v)
		case "quantity":
			it.Quantity, err = unmarshalOInt(k, v)
		}
		if err != nil {
			return it, err
		}
	}
	return it, nil
}

// unmarshalItemRef reads the cartId and id shared by the remove, increase and
// decrease inputs.
func unmarshalItemRef(v any) (cartID, id string, err error) {
	obj, err := inputObject(v)
	if err != nil {
		return "", "", err
	}
	if cartID, err = unmarshalID("cartId", obj["cartId"]); err != nil {
		return "", "", err
	}
	if id, err = unmarshalID("id", obj["id"]); err != nil {
		return "", "", err
	}
	return cartID, id, nil
}

func unmarshalInputCreateCheckoutSessionInput(v any) (CreateCheckoutSessionInput, error) {
	var it CreateCheckoutSessionInput
	obj, err := inputObject(v)
	if err != nil {
		return it, err
	}
	it.CartID, err = unmarshalID("cartId", obj["cartId"])
	return it, err
}

var errNullResult = errors.New("the requested element is null which the schema does not allow")

func (ec *executionContext) fieldContext(ctx context.Context, object string, field graphql.CollectedField, resolver bool) (context.Context, *graphql.FieldContext) {
	fc := &graphql.FieldContext{
		Object:     object,
		Field:      field,
		IsMethod:   resolver,
		IsResolver: resolver,
	}
	return graphql.WithFieldContext(ctx, fc), fc
}

func (ec *executionContext) introspectionDisabled(ctx context.Context, object string, field graphql.CollectedField) graphql.Marshaler {
	ctx, _ = ec.fieldContext(ctx, object, field, true)
	graphql.AddError(ctx, &gqlerror.Error{Message: "introspection disabled"})
	return graphql.Null
}

func (ec *executionContext) _Query_cart(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Query", field, true)
	id, err := unmarshalID("id", field.ArgumentMap(ec.Variables)["id"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"id": id}

	res, err := ec.resolvers.Query().Cart(ctx, id)
	return ec.marshalNCart(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Mutation_addItem(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Mutation", field, true)
	input, err := unmarshalInputAddToCartInput(field.ArgumentMap(ec.Variables)["input"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"input": input}

	res, err := ec.resolvers.Mutation().AddItem(ctx, input)
	return ec.marshalNCart(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Mutation_removeItem(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Mutation", field, true)
	cartID, id, err := unmarshalItemRef(field.ArgumentMap(ec.Variables)["input"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	input := RemoveFromCartInput{CartID: cartID, ID: id}
	fc.Args = map[string]any{"input": input}

	res, err := ec.resolvers.Mutation().RemoveItem(ctx, input)
	return ec.marshalNCart(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Mutation_increaseCartItem(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Mutation", field, true)
	cartID, id, err := unmarshalItemRef(field.ArgumentMap(ec.Variables)["input"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	input := IncreaseCartItemInput{CartID: cartID, ID: id}
	fc.Args = map[string]any{"input": input}

	res, err := ec.resolvers.Mutation().IncreaseCartItem(ctx, input)
	return ec.marshalNCart(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Mutation_decreaseCartItem(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Mutation", field, true)
	cartID, id, err := unmarshalItemRef(field.ArgumentMap(ec.Variables)["input"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	input := DecreaseCartItemInput{CartID: cartID, ID: id}
	fc.Args = map[string]any{"input": input}

	res, err := ec.resolvers.Mutation().DecreaseCartItem(ctx, input)
	return ec.marshalNCart(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Mutation_createCheckoutSession(ctx context.Context, field graphql.CollectedField) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Mutation", field, true)
	input, err := unmarshalInputCreateCheckoutSessionInput(field.ArgumentMap(ec.Variables)["input"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"input": input}

	res, err := ec.resolvers.Mutation().CreateCheckoutSession(ctx, input)
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	if res == nil {
		return graphql.Null
	}
	fc.Result = res
	return ec._CheckoutSession(ctx, field.Selections, res)
}

func (ec *executionContext) _Cart_totalItems(ctx context.Context, field graphql.CollectedField, obj *domain.Cart) graphql.Marshaler {
	ctx, _ = ec.fieldContext(ctx, "Cart", field, true)
	res, err := ec.resolvers.Cart().TotalItems(ctx, obj)
	return ec.marshalNInt(ctx, res, err)
}

func (ec *executionContext) _Cart_items(ctx context.Context, field graphql.CollectedField, obj *domain.Cart) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Cart", field, false)
	fc.Result = obj.Items

	ret := make(graphql.Array, len(obj.Items))
	for i := range obj.Items {
		ctx := graphql.WithFieldContext(ctx, &graphql.FieldContext{Index: &i, Result: &obj.Items[i]})
		ret[i] = ec._CartItem(ctx, field.Selections, &obj.Items[i])
		if ret[i] == graphql.Null {
			return graphql.Null
		}
	}
	return ret
}

func (ec *executionContext) _Cart_subTotal(ctx context.Context, field graphql.CollectedField, obj *domain.Cart) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "Cart", field, true)
	currency, err := unmarshalOCurrencyCode(field.ArgumentMap(ec.Variables)["currency"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"currency": currency}

	res, err := ec.resolvers.Cart().SubTotal(ctx, obj, currency)
	return ec.marshalNMoney(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _CartItem_quantity(ctx context.Context, field graphql.CollectedField, obj *domain.CartItem) graphql.Marshaler {
	ctx, _ = ec.fieldContext(ctx, "CartItem", field, true)
	res, err := ec.resolvers.CartItem().Quantity(ctx, obj)
	return ec.marshalNInt(ctx, res, err)
}

func (ec *executionContext) _CartItem_unitTotal(ctx context.Context, field graphql.CollectedField, obj *domain.CartItem) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "CartItem", field, true)
	currency, err := unmarshalOCurrencyCode(field.ArgumentMap(ec.Variables)["currency"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"currency": currency}

	res, err := ec.resolvers.CartItem().UnitTotal(ctx, obj, currency)
	return ec.marshalNMoney(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _CartItem_lineTotal(ctx context.Context, field graphql.CollectedField, obj *domain.CartItem) graphql.Marshaler {
	ctx, fc := ec.fieldContext(ctx, "CartItem", field, true)
	currency, err := unmarshalOCurrencyCode(field.ArgumentMap(ec.Variables)["currency"])
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Args = map[string]any{"currency": currency}

	res, err := ec.resolvers.CartItem().LineTotal(ctx, obj, currency)
	return ec.marshalNMoney(ctx, fc, field.Selections, res, err)
}

func (ec *executionContext) _Money_amount(ctx context.Context, field graphql.CollectedField, obj *domain.Money) graphql.Marshaler {
	ctx, _ = ec.fieldContext(ctx, "Money", field, true)
	res, err := ec.resolvers.Money().Amount(ctx, obj)
	return ec.marshalNInt(ctx, res, err)
}

var queryImplementors = []string{"Query"}

func (ec *executionContext) _Query(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, queryImplementors)
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{Object: "Query"})

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Query")
		case "cart":
			out.Values[i] = ec._Query_cart(ctx, field)
			if out.Values[i] == graphql.Null {
				out.Invalids++
			}
		case "__schema":
			out.Values[i] = ec.introspectionDisabled(ctx, "Query", field)
			out.Invalids++
		case "__type":
			out.Values[i] = ec.introspectionDisabled(ctx, "Query", field)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

var mutationImplementors = []string{"Mutation"}

// _Mutation resolves root fields one after another in document order.
func (ec *executionContext) _Mutation(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, mutationImplementors)
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{Object: "Mutation"})

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		nonNull := true
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Mutation")
		case "addItem":
			out.Values[i] = ec._Mutation_addItem(ctx, field)
		case "removeItem":
			out.Values[i] = ec._Mutation_removeItem(ctx, field)
		case "increaseCartItem":
			out.Values[i] = ec._Mutation_increaseCartItem(ctx, field)
		case "decreaseCartItem":
			out.Values[i] = ec._Mutation_decreaseCartItem(ctx, field)
		case "createCheckoutSession":
			out.Values[i] = ec._Mutation_createCheckoutSession(ctx, field)
			nonNull = false
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if nonNull && out.Values[i] == graphql.Null {
			out.Invalids++
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

var cartImplementors = []string{"Cart"}

func (ec *executionContext) _Cart(ctx context.Context, sel ast.SelectionSet, obj *domain.Cart) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, cartImplementors)

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Cart")
		case "id":
			out.Values[i] = graphql.MarshalID(obj.ID)
		case "totalItems":
			out.Values[i] = ec._Cart_totalItems(ctx, field, obj)
		case "items":
			out.Values[i] = ec._Cart_items(ctx, field, obj)
		case "subTotal":
			out.Values[i] = ec._Cart_subTotal(ctx, field, obj)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if out.Values[i] == graphql.Null {
			out.Invalids++
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

var cartItemImplementors = []string{"CartItem"}

func (ec *executionContext) _CartItem(ctx context.Context, sel ast.SelectionSet, obj *domain.CartItem) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, cartItemImplementors)

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		nonNull := true
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("CartItem")
		case "id":
			out.Values[i] = graphql.MarshalID(obj.ID)
		case "name":
			out.Values[i] = graphql.MarshalString(obj.Name)
		case "description":
			out.Values[i] = marshalOString(obj.Description)
			nonNull = false
		case "image":
			out.Values[i] = marshalOString(obj.Image)
			nonNull = false
		case "quantity":
			out.Values[i] = ec._CartItem_quantity(ctx, field, obj)
		case "unitTotal":
			out.Values[i] = ec._CartItem_unitTotal(ctx, field, obj)
		case "lineTotal":
			out.Values[i] = ec._CartItem_lineTotal(ctx, field, obj)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if nonNull && out.Values[i] == graphql.Null {
			out.Invalids++
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

var moneyImplementors = []string{"Money"}

func (ec *executionContext) _Money(ctx context.Context, sel ast.SelectionSet, obj *domain.Money) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, moneyImplementors)

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Money")
		case "amount":
			out.Values[i] = ec._Money_amount(ctx, field, obj)
		case "formatted":
			out.Values[i] = graphql.MarshalString(obj.Formatted)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if out.Values[i] == graphql.Null {
			out.Invalids++
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

var checkoutSessionImplementors = []string{"CheckoutSession"}

func (ec *executionContext) _CheckoutSession(ctx context.Context, sel ast.SelectionSet, obj *domain.CheckoutSession) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, checkoutSessionImplementors)

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("CheckoutSession")
		case "id":
			out.Values[i] = graphql.MarshalID(obj.ID)
		case "url":
			if obj.URL == "" {
				out.Values[i] = graphql.Null
			} else {
				out.Values[i] = graphql.MarshalString(obj.URL)
			}
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

func (ec *executionContext) marshalNCart(ctx context.Context, fc *graphql.FieldContext, sel ast.SelectionSet, v *domain.Cart, err error) graphql.Marshaler {
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	if v == nil {
		if !graphql.HasFieldError(ctx, fc) {
			graphql.AddError(ctx, errNullResult)
		}
		return graphql.Null
	}
	fc.Result = v
	return ec._Cart(ctx, sel, v)
}

func (ec *executionContext) marshalNMoney(ctx context.Context, fc *graphql.FieldContext, sel ast.SelectionSet, v *domain.Money, err error) graphql.Marshaler {
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	if v == nil {
		if !graphql.HasFieldError(ctx, fc) {
			graphql.AddError(ctx, errNullResult)
		}
		return graphql.Null
	}
	fc.Result = v
	return ec._Money(ctx, sel, v)
}

func (ec *executionContext) marshalNInt(ctx context.Context, v int32, err error) graphql.Marshaler {
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	return graphql.MarshalInt32(v)
}

func marshalOString(v *string) graphql.Marshaler {
	if v == nil {
		return graphql.Null
	}
	return graphql.MarshalString(*v)
}

