package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/ingest"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/pkg/anthropic"
)

// mockClient implements anthropic.Client for extraction tests.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func testExtractor(client *mockClient) *Extractor {
	return New(client,
		config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929"},
		config.ExtractConfig{
			DefaultConfidence: 0.95,
			MaxRefinements:    1,
			RequestsPerSecond: 1000,
			MaxTokens:         2048,
		})
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: body}},
		StopReason: "end_turn",
	}
}

func TestExtract(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(validOutput), nil)

	doc := &ingest.Document{FileName: "inv.txt", Text: "Invoice INV-001 ..."}
	rec, err := testExtractor(client).Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", *rec.InvoiceNumber)

	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestExtractEmptyDocumentSkipsAPI(t *testing.T) {
	client := new(mockClient)

	doc := &ingest.Document{FileName: "empty.txt", Text: "   \n"}
	rec, err := testExtractor(client).Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Nil(t, rec.InvoiceNumber)
	assert.Empty(t, rec.Confidence)

	client.AssertNumberOfCalls(t, "CreateMessage", 0)
}

func TestExtractSendsDocumentText(t *testing.T) {
	client := new(mockClient)
	var captured anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(validOutput), nil)

	doc := &ingest.Document{FileName: "inv.txt", Text: "Invoice INV-001 total $1000"}
	_, err := testExtractor(client).Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "Invoice INV-001 total $1000")
	require.NotEmpty(t, captured.System)
	assert.Contains(t, captured.System[0].Text, "VENDOR vs BUYER")
}

func TestRefineIncludesFailedVerdicts(t *testing.T) {
	client := new(mockClient)
	var captured anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(textResponse(validOutput), nil)

	doc := &ingest.Document{FileName: "inv.txt", Text: "Invoice INV-001"}
	failed := []model.RuleVerdict{
		{RuleName: "math_check_subtotal_tax", Status: model.RuleFailed,
			ErrorMessage: "Subtotal 900.00 + tax 100.00 = 1000.00 does not equal total 1050.00"},
	}

	_, err := testExtractor(client).Refine(context.Background(), doc, model.ExtractedRecord{}, failed)
	require.NoError(t, err)
	assert.Contains(t, captured.Messages[0].Content, "math_check_subtotal_tax")
	assert.Contains(t, captured.Messages[0].Content, "does not equal")
}

func TestExtractPropagatesParseError(t *testing.T) {
	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("not json"), nil)

	doc := &ingest.Document{FileName: "inv.txt", Text: "Invoice"}
	_, err := testExtractor(client).Extract(context.Background(), doc)
	assert.Error(t, err)
}
