package ddb

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// memDDBClient is an in-memory DynamoDB mock understanding the expressions
// CreditStore issues.
type memDDBClient struct {
	mu      sync.Mutex
	credits map[string]int64
}

func newMemDDBClient() *memDDBClient {
	return &memDDBClient{credits: make(map[string]int64)}
}

func numAttr(v types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(v.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (m *memDDBClient) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := params.Key[keyAttr].(*types.AttributeValueMemberS).Value
	n, ok := m.credits[k]
	if !ok {
		n = numAttr(params.ExpressionAttributeValues[":seed"])
	}
	n += numAttr(params.ExpressionAttributeValues[":delta"])
	m.credits[k] = n

	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		creditAttr: &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)},
	}}, nil
}

func (m *memDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := params.Key[keyAttr].(*types.AttributeValueMemberS).Value
	n, ok := m.credits[k]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		keyAttr:    params.Key[keyAttr],
		creditAttr: &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)},
	}}, nil
}

func (m *memDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := params.Key[keyAttr].(*types.AttributeValueMemberS).Value
	if n, ok := m.credits[k]; ok && n != 0 {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	delete(m.credits, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

type mockDDBClient struct {
	mock.Mock
}

func (m *mockDDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockDDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func TestCreditStore_SeedAndAdd(t *testing.T) {
	ctx := t.Context()
	store := NewCreditStore(newMemDDBClient(), "gidref-credits")
	id := gid.Make(1, core.ComponentFirstUser, 1)

	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.Add(ctx, id, -4, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = store.Add(ctx, id, 20, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(32), n)

	n, ok, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(32), n)
}

func TestCreditStore_DeleteOnlyAtZero(t *testing.T) {
	ctx := t.Context()
	store := NewCreditStore(newMemDDBClient(), "gidref-credits")
	id := gid.Make(1, core.ComponentFirstUser, 1)

	_, err := store.Add(ctx, id, 1, 16)
	require.NoError(t, err)
	assert.ErrorIs(t, store.Delete(ctx, id), ErrConcurrentModification)

	_, err = store.Add(ctx, id, -17, 16)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, id))

	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreditStore_RequestShape(t *testing.T) {
	client := new(mockDDBClient)
	store := NewCreditStore(client, "credits")
	id := gid.Make(2, core.ComponentFirstUser, 5).WithLog2Credit(4)

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		k := in.Key[keyAttr].(*types.AttributeValueMemberS).Value
		return *in.TableName == "credits" &&
			k == id.Hex() &&
			in.ReturnValues == types.ReturnValueUpdatedNew &&
			numAttr(in.ExpressionAttributeValues[":delta"]) == 7
	})).Return(&dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		creditAttr: &types.AttributeValueMemberN{Value: "23"},
	}}, nil).Once()

	n, err := store.Add(t.Context(), id, 7, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(23), n)
	client.AssertExpectations(t)
}

func TestCreditStore_Errors(t *testing.T) {
	boom := errors.New("throttled")
	id := gid.Make(1, core.ComponentFirstUser, 1)

	t.Run("UpdateFails", func(t *testing.T) {
		client := new(mockDDBClient)
		client.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, boom).Once()

		_, err := NewCreditStore(client, "t").Add(t.Context(), id, 1, 16)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("MalformedAttribute", func(t *testing.T) {
		client := new(mockDDBClient)
		client.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{
				creditAttr: &types.AttributeValueMemberS{Value: "many"},
			},
		}, nil).Once()

		_, err := NewCreditStore(client, "t").Add(t.Context(), id, 1, 16)
		assert.Error(t, err)
	})

	t.Run("DeleteFails", func(t *testing.T) {
		client := new(mockDDBClient)
		client.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, boom).Once()

		err := NewCreditStore(client, "t").Delete(t.Context(), id)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrConcurrentModification)
	})
}

func TestCreditStore_BacksService(t *testing.T) {
	store := NewCreditStore(newMemDDBClient(), "gidref-credits")
	svc, err := agas.NewService(func(o *agas.ServiceOptions) {
		o.InitialCredit = 16
		o.Store = store
	})
	require.NoError(t, err)

	destroyed := make(chan gid.GID, 1)
	require.NoError(t, svc.RegisterLocality(1, agas.DestroyerFunc(func(_ context.Context, id gid.GID, _ core.Address) error {
		destroyed <- id
		return nil
	})))

	ctx := t.Context()
	id := gid.Make(1, core.ComponentFirstUser, 3)
	require.NoError(t, svc.Bind(ctx, id, core.Address{Locality: 1, Type: core.ComponentFirstUser}))

	_, err = svc.IncrementCredit(ctx, id, 15)
	require.NoError(t, err)
	require.NoError(t, svc.DecrementCredit(ctx, id, 16))
	require.NoError(t, svc.DecrementCredit(ctx, id, 15))

	assert.Equal(t, id, <-destroyed)
	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_CreditStore(t *testing.T) {
	table := os.Getenv("DDB_CREDIT_TABLE")
	if table == "" {
		t.Skip("Skipping DynamoDB integration test: DDB_CREDIT_TABLE not set")
	}

	ctx := t.Context()
	store, err := NewCreditStoreFromDefaultConfig(ctx, table)
	require.NoError(t, err)

	id := gid.Make(1, core.ComponentFirstUser, uint64(time.Now().UnixNano()))
	n, err := store.Add(ctx, id, 1, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	_, err = store.Add(ctx, id, -17, 16)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, id))
}
