package address

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeTable is an in-memory table that understands the small subset of
// expressions the repository issues.
type fakeTable struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int

	queryErr    error
	putErr      error
	updateErr   error
	transactErr error

	// block makes every call wait for its context to end.
	block bool

	transactCalls int
	putCalls      int
	updateCalls   int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

// wait returns the context error once ctx ends when the table is blocking.
func (f *fakeTable) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func itemKey(item map[string]types.AttributeValue) string {
	return attrS(item, "pk") + "|" + attrS(item, "sk")
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// conditionHolds evaluates attribute_exists/attribute_not_exists on pk.
func (f *fakeTable) conditionHolds(key string, cond *string) bool {
	_, exists := f.items[key]
	switch aws.ToString(cond) {
	case "":
		return true
	case "attribute_not_exists(pk)":
		return !exists
	case "attribute_exists(pk)":
		return exists
	default:
		panic("fakeTable: unsupported condition " + aws.ToString(cond))
	}
}

func (f *fakeTable) Query(ctx context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	values := input.ExpressionAttributeValues
	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if aws.ToString(input.IndexName) == "gsi1" {
			if attrS(item, "gsi1pk") == attrS(values, ":gpk") {
				matched = append(matched, copyItem(item))
			}
			continue
		}
		if attrS(item, "pk") == attrS(values, ":pk") && strings.HasPrefix(attrS(item, "sk"), attrS(values, ":prefix")) {
			matched = append(matched, copyItem(item))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return itemKey(matched[i]) < itemKey(matched[j]) })

	if input.ExclusiveStartKey != nil {
		start := itemKey(input.ExclusiveStartKey)
		for i, item := range matched {
			if itemKey(item) == start {
				matched = matched[i+1:]
				break
			}
		}
	}

	limit := len(matched)
	if input.Limit != nil && int(*input.Limit) < limit {
		limit = int(*input.Limit)
	}
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
	}

	out := &dynamodb.QueryOutput{Items: matched[:limit]}
	if limit < len(matched) && limit > 0 {
		last := matched[limit-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": last["pk"], "sk": last["sk"]}
	}
	return out, nil
}

func (f *fakeTable) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}

	key := itemKey(input.Item)
	if !f.conditionHolds(key, input.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items[key] = copyItem(input.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}

	key := itemKey(input.Key)
	if !f.conditionHolds(key, input.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}

	item, ok := f.items[key]
	if !ok {
		item = copyItem(input.Key)
	}

	expr := strings.TrimPrefix(aws.ToString(input.UpdateExpression), "SET ")
	for _, clause := range splitClauses(expr) {
		lhs, rhs, found := strings.Cut(clause, "=")
		if !found {
			panic("fakeTable: bad clause " + clause)
		}
		name := strings.TrimSpace(lhs)
		if alias, ok := input.ExpressionAttributeNames[name]; ok {
			name = alias
		}
		rhs = strings.TrimSpace(rhs)
		if strings.HasPrefix(rhs, "if_not_exists(") {
			if _, present := item[name]; present {
				continue
			}
			args := strings.TrimSuffix(strings.TrimPrefix(rhs, "if_not_exists("), ")")
			_, placeholder, _ := strings.Cut(args, ",")
			rhs = strings.TrimSpace(placeholder)
		}
		value, ok := input.ExpressionAttributeValues[rhs]
		if !ok {
			panic("fakeTable: missing value " + rhs)
		}
		item[name] = value
	}
	f.items[key] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

// splitClauses splits a SET list on commas outside parentheses.
func splitClauses(expr string) []string {
	var clauses []string
	depth, start := 0, 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				clauses = append(clauses, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		}
	}
	return append(clauses, strings.TrimSpace(expr[start:]))
}

func (f *fakeTable) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	if f.transactErr != nil {
		return nil, f.transactErr
	}

	reasons := make([]types.CancellationReason, len(input.TransactItems))
	failed := false
	for i, ti := range input.TransactItems {
		var key string
		var cond *string
		switch {
		case ti.ConditionCheck != nil:
			key, cond = itemKey(ti.ConditionCheck.Key), ti.ConditionCheck.ConditionExpression
		case ti.Put != nil:
			key, cond = itemKey(ti.Put.Item), ti.Put.ConditionExpression
		default:
			return nil, errors.New("fakeTable: unsupported transact item")
		}
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if !f.conditionHolds(key, cond) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String(fmt.Sprintf("Transaction cancelled, %d reasons", len(reasons))),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range input.TransactItems {
		if ti.Put != nil {
			f.items[itemKey(ti.Put.Item)] = copyItem(ti.Put.Item)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeTable) get(pk, sk string) (map[string]types.AttributeValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[pk+"|"+sk]
	return item, ok
}
