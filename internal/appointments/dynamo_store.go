package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DayIndex is the global secondary index keyed by bookingDay.
const DayIndex = "bookingDay-index"

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type dynamoRecord struct {
	SlotKey           string `dynamodbav:"slotKey"`
	ID                string `dynamodbav:"id"`
	FullName          string `dynamodbav:"fullName"`
	Email             string `dynamodbav:"email"`
	BookingDay        string `dynamodbav:"bookingDay"`
	TimeSlot          string `dynamodbav:"timeSlot"`
	ReasonCategory    string `dynamodbav:"reasonCategory"`
	Reason            string `dynamodbav:"reason"`
	HasInsurance      bool   `dynamodbav:"hasInsurance"`
	InsuranceProvider string `dynamodbav:"insuranceProvider,omitempty"`
	MemberID          string `dynamodbav:"memberId,omitempty"`
	Notes             string `dynamodbav:"notes,omitempty"`
	CreatedAt         string `dynamodbav:"createdAt"`
}

func (r dynamoRecord) appointment() Appointment {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return Appointment{
		ID:                r.ID,
		FullName:          r.FullName,
		Email:             r.Email,
		BookingDay:        r.BookingDay,
		TimeSlot:          r.TimeSlot,
		ReasonCategory:    ReasonCategory(r.ReasonCategory),
		Reason:            r.Reason,
		HasInsurance:      r.HasInsurance,
		InsuranceProvider: r.InsuranceProvider,
		MemberID:          r.MemberID,
		Notes:             r.Notes,
		CreatedAt:         created,
	}
}

// DynamoStore keeps one item per booked slot, keyed by "<day>#<slot>".
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("appointments: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("appointments: table name cannot be empty")
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create writes the slot item conditionally so a taken slot fails with ErrConflict.
func (s *DynamoStore) Create(ctx context.Context, draft Draft) (*Appointment, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}
	appt := newAppointment(uuid.NewString(), draft, s.now())
	record := dynamoRecord{
		SlotKey:           slotKey(appt.BookingDay, appt.TimeSlot),
		ID:                appt.ID,
		FullName:          appt.FullName,
		Email:             appt.Email,
		BookingDay:        appt.BookingDay,
		TimeSlot:          appt.TimeSlot,
		ReasonCategory:    string(appt.ReasonCategory),
		Reason:            appt.Reason,
		HasInsurance:      appt.HasInsurance,
		InsuranceProvider: appt.InsuranceProvider,
		MemberID:          appt.MemberID,
		Notes:             appt.Notes,
		CreatedAt:         appt.CreatedAt.Format(time.RFC3339Nano),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("appointments: failed to marshal appointment: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(slotKey)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("appointments: failed to persist appointment: %w", err)
	}
	return &appt, nil
}

func (s *DynamoStore) ListByDate(ctx context.Context, day string) ([]string, error) {
	day, err := CanonicalDay(day)
	if err != nil {
		return nil, err
	}
	slots := []string{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(DayIndex),
			KeyConditionExpression: aws.String("bookingDay = :day"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":day": &types.AttributeValueMemberS{Value: day},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("appointments: failed to query slots: %w", err)
		}
		var records []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
			return nil, fmt.Errorf("appointments: failed to decode slots: %w", err)
		}
		for _, r := range records {
			slots = append(slots, r.TimeSlot)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	SortSlots(slots)
	return slots, nil
}

func (s *DynamoStore) ListAll(ctx context.Context) ([]Appointment, error) {
	out := []Appointment{}
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("appointments: failed to scan appointments: %w", err)
		}
		var records []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, fmt.Errorf("appointments: failed to decode appointments: %w", err)
		}
		for _, r := range records {
			out = append(out, r.appointment())
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	SortAppointments(out)
	return out, nil
}
