package address

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jarrod-lowe/burner-notify/internal/dynamo"
)

// maxCreateAttempts bounds address regeneration after a collision.
const maxCreateAttempts = 3

// DefaultStoreTimeout bounds a single table call when Config leaves it unset.
const DefaultStoreTimeout = 5 * time.Second

// Positions of the items in the create-address transaction.
const (
	txProfileCheck = iota
	txClaim
	txAddress
)

const conditionalCheckFailed = "ConditionalCheckFailed"

// errProfileMissing signals that the owning profile row does not exist yet.
var errProfileMissing = errors.New("user profile missing")

// DynamoDBClient defines the interface for DynamoDB operations.
type DynamoDBClient interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config holds configuration for the repository.
type Config struct {
	Domain         string
	LocalPartBytes int
	// HideInactive makes ResolveOwner treat INACTIVE addresses as unknown.
	HideInactive bool
	// StoreTimeout bounds each table call. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
}

// DynamoDBRepository implements Repository using DynamoDB.
type DynamoDBRepository struct {
	client       DynamoDBClient
	tableName    string
	generator    *Generator
	hideInactive bool
	timeout      time.Duration
	now          func() time.Time
}

// NewDynamoDBRepository creates a new DynamoDBRepository.
func NewDynamoDBRepository(client DynamoDBClient, tableName string, cfg Config) *DynamoDBRepository {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &DynamoDBRepository{
		client:       client,
		tableName:    tableName,
		generator:    NewGenerator(cfg.Domain, cfg.LocalPartBytes),
		hideInactive: cfg.HideInactive,
		timeout:      timeout,
		now:          time.Now,
	}
}

// CreateAddress generates a new ACTIVE address for chatID. A collision with an
// existing address is retried with a fresh address up to maxCreateAttempts times.
func (r *DynamoDBRepository) CreateAddress(ctx context.Context, chatID int64) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		addr, err := r.generator.Next()
		if err != nil {
			return "", fmt.Errorf("generate address: %w", err)
		}

		item := &AddressItem{
			ChatID:    chatID,
			Address:   addr,
			Status:    StatusActive,
			CreatedAt: r.now().UTC(),
		}
		err = r.putAddress(ctx, item)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, ErrAddressTaken) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("create address after %d attempts: %w", maxCreateAttempts, lastErr)
}

// putAddress writes the address, creating the owner profile and retrying
// exactly once if the profile does not exist yet.
func (r *DynamoDBRepository) putAddress(ctx context.Context, item *AddressItem) error {
	err := r.transactCreate(ctx, item)
	if !errors.Is(err, errProfileMissing) {
		return err
	}

	if err := r.createProfileIfAbsent(ctx, &UserProfile{ChatID: item.ChatID, CreatedAt: item.CreatedAt}); err != nil {
		return err
	}

	err = r.transactCreate(ctx, item)
	if errors.Is(err, errProfileMissing) {
		return fmt.Errorf("%w: profile for chat %d still missing", ErrStoreUnavailable, item.ChatID)
	}
	return err
}

// transactCreate writes the claim and address items in one transaction,
// conditional on the profile existing and the address being unclaimed.
func (r *DynamoDBRepository) transactCreate(ctx context.Context, item *AddressItem) error {
	profile := &UserProfile{ChatID: item.ChatID}

	transactItems := make([]types.TransactWriteItem, 3)
	transactItems[txProfileCheck] = types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: profile.PK()},
				dynamo.AttrSK: &types.AttributeValueMemberS{Value: profile.SK()},
			},
			ConditionExpression: aws.String("attribute_exists(pk)"),
		},
	}
	transactItems[txClaim] = types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                marshalClaimItem(item),
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}
	transactItems[txAddress] = types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                marshalAddressItem(item),
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return cancellationError(tce.CancellationReasons, err)
	}
	return fmt.Errorf("%w: create address: %w", ErrStoreUnavailable, err)
}

// cancellationError maps transaction cancellation reasons to repository errors.
func cancellationError(reasons []types.CancellationReason, cause error) error {
	for i, reason := range reasons {
		if aws.ToString(reason.Code) != conditionalCheckFailed {
			continue
		}
		switch i {
		case txProfileCheck:
			return errProfileMissing
		case txClaim, txAddress:
			return ErrAddressTaken
		}
	}
	return fmt.Errorf("%w: create address: %w", ErrStoreUnavailable, cause)
}

// createProfileIfAbsent writes an empty profile row unless one already exists.
func (r *DynamoDBRepository) createProfileIfAbsent(ctx context.Context, profile *UserProfile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                marshalUserProfile(profile),
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("%w: create profile: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// EnsureUser creates the profile for a chat, or refreshes its display fields
// if it already exists. The original creation time is preserved.
func (r *DynamoDBRepository) EnsureUser(ctx context.Context, profile *UserProfile) error {
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: profile.PK()},
			dynamo.AttrSK: &types.AttributeValueMemberS{Value: profile.SK()},
		},
		UpdateExpression: aws.String("SET chatId = :chatId, firstName = :firstName, username = :username, createdAt = if_not_exists(createdAt, :createdAt)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chatId":    &types.AttributeValueMemberN{Value: strconv.FormatInt(profile.ChatID, 10)},
			":firstName": &types.AttributeValueMemberS{Value: profile.FirstName},
			":username":  &types.AttributeValueMemberS{Value: profile.Username},
			":createdAt": &types.AttributeValueMemberS{Value: formatTime(createdAt)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: ensure user: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// ListAddresses returns the ACTIVE addresses of a chat in creation order.
func (r *DynamoDBRepository) ListAddresses(ctx context.Context, chatID int64) ([]string, error) {
	var items []*AddressItem
	var startKey map[string]types.AttributeValue

	for {
		pageCtx, cancel := context.WithTimeout(ctx, r.timeout)
		output, err := r.client.Query(pageCtx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: userPK(chatID)},
				":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixAddress},
			},
			ExclusiveStartKey: startKey,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: list addresses: %w", ErrStoreUnavailable, err)
		}

		for _, raw := range output.Items {
			item := unmarshalAddressItem(raw)
			if item.Status == StatusActive {
				items = append(items, item)
			}
		}

		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		startKey = output.LastEvaluatedKey
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Address < items[j].Address
	})

	addresses := make([]string, len(items))
	for i, item := range items {
		addresses[i] = item.Address
	}
	return addresses, nil
}

// DeactivateAddress marks an address owned by chatID as INACTIVE. Addresses
// that do not exist, belong to another chat, or are already inactive are left
// untouched and reported as success.
func (r *DynamoDBRepository) DeactivateAddress(ctx context.Context, chatID int64, address string) error {
	addr := Normalize(address)
	if addr == "" {
		return nil
	}
	item := &AddressItem{ChatID: chatID, Address: addr}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: item.PK()},
			dynamo.AttrSK: &types.AttributeValueMemberS{Value: item.SK()},
		},
		UpdateExpression: aws.String("SET #status = :inactive, deactivatedAt = if_not_exists(deactivatedAt, :now)"),
		ExpressionAttributeNames: map[string]string{
			"#status": AttrStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inactive": &types.AttributeValueMemberS{Value: string(StatusInactive)},
			":now":      &types.AttributeValueMemberS{Value: formatTime(r.now())},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("%w: deactivate address: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// ResolveOwner looks up the chat owning an address through the reverse index.
// INACTIVE addresses resolve unless the repository was configured with HideInactive.
func (r *DynamoDBRepository) ResolveOwner(ctx context.Context, address string) (*Owner, error) {
	addr := Normalize(address)
	if addr == "" {
		return nil, ErrOwnerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexGSI1),
		KeyConditionExpression: aws.String("gsi1pk = :gpk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gpk": &types.AttributeValueMemberS{Value: dynamo.PrefixAddress + addr},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolve owner: %w", ErrStoreUnavailable, err)
	}
	if len(output.Items) == 0 {
		return nil, ErrOwnerNotFound
	}

	raw := output.Items[0]
	item := unmarshalAddressItem(raw)
	userID := ""
	if v, ok := raw[dynamo.AttrGSI1SK].(*types.AttributeValueMemberS); ok {
		userID = strings.TrimPrefix(v.Value, dynamo.PrefixUser)
	}
	if item.ChatID == 0 || userID == "" {
		return nil, ErrOwnerNotFound
	}
	if item.Status == StatusInactive && r.hideInactive {
		return nil, ErrOwnerNotFound
	}

	return &Owner{
		ChatID:  item.ChatID,
		UserID:  userID,
		Address: item.Address,
		Status:  item.Status,
	}, nil
}

// marshalAddressItem converts an AddressItem to DynamoDB attribute values.
func marshalAddressItem(a *AddressItem) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		dynamo.AttrPK:     &types.AttributeValueMemberS{Value: a.PK()},
		dynamo.AttrSK:     &types.AttributeValueMemberS{Value: a.SK()},
		dynamo.AttrGSI1PK: &types.AttributeValueMemberS{Value: a.GSI1PK()},
		dynamo.AttrGSI1SK: &types.AttributeValueMemberS{Value: a.GSI1SK()},
		AttrAddress:       &types.AttributeValueMemberS{Value: a.Address},
		AttrChatID:        &types.AttributeValueMemberN{Value: strconv.FormatInt(a.ChatID, 10)},
		AttrStatus:        &types.AttributeValueMemberS{Value: string(a.Status)},
		AttrCreatedAt:     &types.AttributeValueMemberS{Value: formatTime(a.CreatedAt)},
	}
	if !a.DeactivatedAt.IsZero() {
		item[AttrDeactivatedAt] = &types.AttributeValueMemberS{Value: formatTime(a.DeactivatedAt)}
	}
	return item
}

// marshalClaimItem builds the uniqueness claim for an address.
func marshalClaimItem(a *AddressItem) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: a.ClaimPK()},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: SKClaim},
		AttrChatID:    &types.AttributeValueMemberN{Value: strconv.FormatInt(a.ChatID, 10)},
		AttrCreatedAt: &types.AttributeValueMemberS{Value: formatTime(a.CreatedAt)},
	}
}

// marshalUserProfile converts a UserProfile to DynamoDB attribute values.
func marshalUserProfile(u *UserProfile) map[string]types.AttributeValue {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return map[string]types.AttributeValue{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: u.PK()},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: u.SK()},
		AttrChatID:    &types.AttributeValueMemberN{Value: strconv.FormatInt(u.ChatID, 10)},
		AttrFirstName: &types.AttributeValueMemberS{Value: u.FirstName},
		AttrUsername:  &types.AttributeValueMemberS{Value: u.Username},
		AttrCreatedAt: &types.AttributeValueMemberS{Value: formatTime(createdAt)},
	}
}

// unmarshalAddressItem converts DynamoDB attribute values to an AddressItem.
func unmarshalAddressItem(item map[string]types.AttributeValue) *AddressItem {
	a := &AddressItem{}

	if v, ok := item[AttrAddress].(*types.AttributeValueMemberS); ok {
		a.Address = v.Value
	} else if v, ok := item[dynamo.AttrSK].(*types.AttributeValueMemberS); ok {
		a.Address = strings.TrimPrefix(v.Value, dynamo.PrefixAddress)
	}
	if v, ok := item[AttrChatID].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			a.ChatID = n
		}
	}
	if v, ok := item[AttrStatus].(*types.AttributeValueMemberS); ok {
		a.Status = Status(v.Value)
	}
	if v, ok := item[AttrCreatedAt].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339Nano, v.Value); err == nil {
			a.CreatedAt = t
		}
	}
	if v, ok := item[AttrDeactivatedAt].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339Nano, v.Value); err == nil {
			a.DeactivatedAt = t
		}
	}

	return a
}

// formatTime renders timestamps with nanoseconds so creation order survives
// addresses created within the same second.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
