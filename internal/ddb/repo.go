// Package ddb provides the single-table DynamoDB repository for recordings,
// note actions, shares and analytics events.
//
// Item layout:
//
//	Recording   PK=REC#<id>     SK=META   GSI1PK=USER#<sub>|ANON#<uuid> GSI1SK=created_at
//	NoteAction  PK=REC#<id>     SK=ACT#<actionID>
//	Share       PK=REC#<id>     SK=SHARE  (mirror: PK=SHARE#<token> SK=META)
//	Event       PK=EVT#<id>     SK=META
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notepin/notepin-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OwnerIndex is the GSI projecting recordings by owner key.
const OwnerIndex = "GSI1"

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("item not found")

// ErrStatusConflict is returned when a conditional status transition loses a
// race with a concurrent writer.
var ErrStatusConflict = errors.New("recording status changed concurrently")

// API is the subset of the DynamoDB client the repo uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Repo wraps a DynamoDB client and table name.
type Repo struct {
	DB    API
	Table string
}

// NowISO returns the current time in ISO8601 format.
func NowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// OwnerKey constructs the owner key for a recording's user/anonymous pair.
func OwnerKey(userID, anonymousID string) string {
	if userID != "" {
		return "USER#" + userID
	}
	if anonymousID != "" {
		return "ANON#" + anonymousID
	}
	return ""
}

// RecordingKeys constructs the item keys for a recording.
func RecordingKeys(id string) (pk, sk string) {
	return "REC#" + id, "META"
}

// ---- Recordings ----

// PutPendingRecording inserts a new recording, ensuring no duplicate exists.
// It stamps the item keys and timestamps.
func (r *Repo) PutPendingRecording(ctx context.Context, rec *models.Recording) error {
	now := NowISO()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.PK, rec.SK = RecordingKeys(rec.ID)
	rec.GSI1PK = OwnerKey(rec.UserID, rec.AnonymousID)
	rec.GSI1SK = rec.CreatedAt

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	return err
}

// GetRecording fetches a recording by id. Reads are strongly consistent so
// the processing job's idempotency gate sees the latest status.
func (r *Repo) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	pk, sk := RecordingKeys(id)
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.Table,
		Key:            keyAttrs(pk, sk),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var rec models.Recording
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveRecording writes the recording back as a whole-object save. Concurrent
// saves are last-writer-wins; see the design notes.
func (r *Repo) SaveRecording(ctx context.Context, rec *models.Recording) error {
	rec.UpdatedAt = NowISO()
	rec.PK, rec.SK = RecordingKeys(rec.ID)
	rec.GSI1PK = OwnerKey(rec.UserID, rec.AnonymousID)
	rec.GSI1SK = rec.CreatedAt

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.Table,
		Item:      item,
	})
	return err
}

// SetRecordingStatus transitions a recording's status, conditional on the
// current status being one of from. A lost race returns ErrStatusConflict.
func (r *Repo) SetRecordingStatus(ctx context.Context, id string, from []models.RecordingStatus, to models.RecordingStatus) error {
	pk, sk := RecordingKeys(id)

	names := map[string]string{"#s": "status"}
	values := map[string]types.AttributeValue{
		":to":  &types.AttributeValueMemberS{Value: string(to)},
		":now": &types.AttributeValueMemberS{Value: NowISO()},
	}
	placeholders := make([]string, len(from))
	for i, s := range from {
		ph := fmt.Sprintf(":f%d", i)
		placeholders[i] = ph
		values[ph] = &types.AttributeValueMemberS{Value: string(s)}
	}

	_, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.Table,
		Key:                       keyAttrs(pk, sk),
		UpdateExpression:          awsStr("SET #s = :to, updated_at = :now"),
		ConditionExpression:       awsStr("#s IN (" + strings.Join(placeholders, ", ") + ")"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return ErrStatusConflict
	}
	return err
}

// ListRecordingsByOwner returns the owner's recordings, newest first.
// limit <= 0 means no limit.
func (r *Repo) ListRecordingsByOwner(ctx context.Context, ownerKey string, limit int32) ([]models.Recording, error) {
	in := &dynamodb.QueryInput{
		TableName:              &r.Table,
		IndexName:              awsStr(OwnerIndex),
		KeyConditionExpression: awsStr("GSI1PK = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: ownerKey},
		},
		ScanIndexForward: awsBool(false),
	}
	if limit > 0 {
		in.Limit = &limit
	}
	out, err := r.DB.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	recs := make([]models.Recording, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// LinkAnonymousRecordings reassigns every recording owned by the anonymous
// identifier to the user, clearing the anonymous id. Returns the number of
// recordings linked.
func (r *Repo) LinkAnonymousRecordings(ctx context.Context, anonymousID, userID string) (int, error) {
	recs, err := r.ListRecordingsByOwner(ctx, "ANON#"+anonymousID, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range recs {
		rec := &recs[i]
		if rec.UserID != "" {
			continue
		}
		rec.UserID = userID
		rec.AnonymousID = ""
		if err := r.SaveRecording(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ---- Note actions ----

// PutNoteAction inserts a new note action for a recording.
func (r *Repo) PutNoteAction(ctx context.Context, a *models.NoteAction) error {
	a.CreatedAt = NowISO()
	a.PK = "REC#" + a.RecordingID
	a.SK = "ACT#" + a.ID

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	return err
}

// UpdateNoteActionStatus updates the status of an existing note action and
// returns the updated item.
func (r *Repo) UpdateNoteActionStatus(ctx context.Context, recordingID, actionID, status string) (*models.NoteAction, error) {
	out, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.Table,
		Key:                 keyAttrs("REC#"+recordingID, "ACT#"+actionID),
		UpdateExpression:    awsStr("SET #s = :s"),
		ConditionExpression: awsStr("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: status},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a models.NoteAction
	if err := attributevalue.UnmarshalMap(out.Attributes, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteNoteAction removes a note action.
func (r *Repo) DeleteNoteAction(ctx context.Context, recordingID, actionID string) error {
	_, err := r.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &r.Table,
		Key:                 keyAttrs("REC#"+recordingID, "ACT#"+actionID),
		ConditionExpression: awsStr("attribute_exists(PK)"),
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

// ListNoteActions returns all note actions for a recording.
func (r *Repo) ListNoteActions(ctx context.Context, recordingID string) ([]models.NoteAction, error) {
	out, err := r.DB.Query(ctx, &dynamodb.QueryInput{
		TableName:              &r.Table,
		KeyConditionExpression: awsStr("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: "REC#" + recordingID},
			":prefix": &types.AttributeValueMemberS{Value: "ACT#"},
		},
	})
	if err != nil {
		return nil, err
	}
	actions := make([]models.NoteAction, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// ---- Shares ----

// EnsureShare creates a share for the recording with the given token, or
// returns the existing one. created reports whether a new share was made.
func (r *Repo) EnsureShare(ctx context.Context, recordingID, token string) (*models.Share, bool, error) {
	share := &models.Share{
		PK:          "REC#" + recordingID,
		SK:          "SHARE",
		RecordingID: recordingID,
		Token:       token,
		CreatedAt:   NowISO(),
	}
	item, err := attributevalue.MarshalMap(share)
	if err != nil {
		return nil, false, err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if isConditionFailed(err) {
		existing, gerr := r.getShare(ctx, "REC#"+recordingID, "SHARE")
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Mirror item for token lookup.
	mirror := *share
	mirror.PK, mirror.SK = "SHARE#"+token, "META"
	mitem, err := attributevalue.MarshalMap(&mirror)
	if err != nil {
		return nil, false, err
	}
	if _, err := r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: &r.Table, Item: mitem}); err != nil {
		return nil, false, err
	}
	return share, true, nil
}

// GetShareByToken resolves a public share token.
func (r *Repo) GetShareByToken(ctx context.Context, token string) (*models.Share, error) {
	return r.getShare(ctx, "SHARE#"+token, "META")
}

func (r *Repo) getShare(ctx context.Context, pk, sk string) (*models.Share, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Table,
		Key:       keyAttrs(pk, sk),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var share models.Share
	if err := attributevalue.UnmarshalMap(out.Item, &share); err != nil {
		return nil, err
	}
	return &share, nil
}

// ---- Events ----

// PutEvent appends an analytics event. Events are never mutated.
func (r *Repo) PutEvent(ctx context.Context, ev models.Event) error {
	if ev.CreatedAt == "" {
		ev.CreatedAt = NowISO()
	}
	ev.PK, ev.SK = "EVT#"+ev.ID, "META"

	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.Table,
		Item:      item,
	})
	return err
}

// ---- helpers ----

// awsStr is a helper to get a pointer to a string literal.
func awsStr(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func keyAttrs(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func isConditionFailed(err error) bool {
	var cf *types.ConditionalCheckFailedException
	return errors.As(err, &cf)
}
