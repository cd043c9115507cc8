package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/client"
)

func testAccount(firmID, accountID string) *account.TrustAccount {
	now := time.Now().UTC()
	return &account.TrustAccount{
		FirmID:      firmID,
		AccountID:   accountID,
		Name:        "General Trust",
		AccountType: account.Pooled,
		Currency:    "USD",
		Status:      account.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// marshalTestAccount builds the stored form of an account, PK/SK included
func marshalTestAccount(acct *account.TrustAccount) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(acct)
	if err != nil {
		return nil, err
	}
	item["PK"] = &types.AttributeValueMemberS{Value: firmPK(acct.FirmID)}
	item["SK"] = &types.AttributeValueMemberS{Value: accountSK(acct.AccountID)}
	return item, nil
}

func TestCreateAccount(t *testing.T) {
	t.Run("creates and reads back", func(t *testing.T) {
		tc := NewTestClient()
		repo := NewDynamoDBTrustAccountRepository(tc, "test-table", slog.Default())

		created, err := repo.CreateAccount(context.Background(), testAccount("firm1", "acct1"))
		require.NoError(t, err)
		assert.Equal(t, "acct1", created.AccountID)

		got, err := repo.GetAccount(context.Background(), "firm1", "acct1")
		require.NoError(t, err)
		assert.Equal(t, "General Trust", got.Name)
		assert.Equal(t, account.Pooled, got.AccountType)
		assert.Equal(t, "USD", got.Currency)
		assert.Equal(t, account.Active, got.Status)
		assert.Equal(t, int64(0), got.Balance)
	})

	t.Run("duplicate account id", func(t *testing.T) {
		tc := NewTestClient()
		repo := NewDynamoDBTrustAccountRepository(tc, "test-table", slog.Default())

		_, err := repo.CreateAccount(context.Background(), testAccount("firm1", "acct1"))
		require.NoError(t, err)

		_, err = repo.CreateAccount(context.Background(), testAccount("firm1", "acct1"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "CONFLICT")
	})
}

func TestGetAccountNotFound(t *testing.T) {
	tc := NewTestClient()
	repo := NewDynamoDBTrustAccountRepository(tc, "test-table", slog.Default())

	_, err := repo.GetAccount(context.Background(), "firm1", "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestListAccounts(t *testing.T) {
	tc := NewTestClient()
	repo := NewDynamoDBTrustAccountRepository(tc, "test-table", slog.Default())

	_, err := repo.CreateAccount(context.Background(), testAccount("firm1", "acct1"))
	require.NoError(t, err)
	_, err = repo.CreateAccount(context.Background(), testAccount("firm1", "acct2"))
	require.NoError(t, err)
	_, err = repo.CreateAccount(context.Background(), testAccount("firm2", "acct3"))
	require.NoError(t, err)

	accounts, err := repo.ListAccounts(context.Background(), "firm1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acct1", accounts[0].AccountID)
	assert.Equal(t, "acct2", accounts[1].AccountID)
}

func TestCloseAccountConflict(t *testing.T) {
	mock := client.NewMockDynamoDBClient()
	mock.GetItemFn = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		item, err := marshalTestAccount(testAccount("firm1", "acct1"))
		if err != nil {
			return nil, err
		}
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	// The balance went nonzero (or the version moved) between read and write
	mock.UpdateItemFn = func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{}
	}

	repo := NewDynamoDBTrustAccountRepository(mock, "test-table", slog.Default())
	_, err := repo.CloseAccount(context.Background(), "firm1", "acct1", "matter concluded")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CONFLICT")
}
