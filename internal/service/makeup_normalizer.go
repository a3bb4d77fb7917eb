package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/edu-makeup-api/internal/models"
)

// Candidate key paths per canonical field. Dotted paths walk nested objects; the first
// non-empty value wins so upstream naming drift does not break the lists.
var (
	listEnvelopePaths = []string{"data", "items", "data.items", "results", "data.data", "data.results"}

	studentIDPaths   = []string{"id", "studentProfileId", "studentId", "profileId", "student.id"}
	studentNamePaths = []string{"displayName", "fullName", "name", "studentName", "student.displayName", "student.fullName", "user.fullName"}

	creditIDPaths     = []string{"id", "creditId", "makeupCreditId"}
	creditStatusPaths = []string{"status", "state", "creditStatus"}
	creditSourcePaths = []string{"sourceSessionId", "sessionId", "originSessionId", "missedSessionId", "sourceSession.id", "session.id"}

	sessionIDPaths      = []string{"sessionId", "id", "session.id"}
	sessionClassIDPaths = []string{"classId", "class.id", "classroomId"}
	sessionClassName    = []string{"className", "classTitle", "class.title", "class.name"}
	sessionClassCode    = []string{"classCode", "class.code"}
	plannedPaths        = []string{"plannedDatetime", "plannedDateTime", "startTime", "startAt", "startsAt", "datetime"}
	roomPaths           = []string{"plannedRoomName", "roomName", "room.name"}
	branchPaths         = []string{"branchName", "branch.name"}

	groupClassIDPaths    = []string{"classId", "id", "class.id"}
	groupClassCodePaths  = []string{"classCode", "code", "class.code"}
	groupClassTitlePaths = []string{"classTitle", "className", "title", "name", "class.title", "class.name"}
	groupSessionsKey     = "sessions"

	classIDPaths   = []string{"id", "classId"}
	classCodePaths = []string{"code", "classCode"}
	classNamePaths = []string{"name", "title", "classTitle", "className"}
)

// Normalizer converts heterogeneous upstream payloads into the canonical make-up shapes.
type Normalizer struct{}

// NewNormalizer constructs a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize dispatches on entity kind and returns the canonical slice (or *SourceSession).
func (n *Normalizer) Normalize(kind models.MakeupEntityKind, raw []byte) (interface{}, error) {
	switch kind {
	case models.EntityStudent:
		return n.Students(raw)
	case models.EntityCredit:
		return n.Credits(raw)
	case models.EntitySourceSession:
		return n.SourceSession(raw)
	case models.EntitySuggestion:
		return n.Suggestions(raw)
	case models.EntityManualClass:
		return n.ManualClasses(raw)
	case models.EntityManualSession:
		return n.ManualSessions(raw)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// Students normalizes the students-with-credits listing.
func (n *Normalizer) Students(raw []byte) ([]models.MakeupStudent, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	result := make([]models.MakeupStudent, 0, len(items))
	for _, item := range items {
		id := item.lookup(studentIDPaths...)
		if id == "" {
			continue
		}
		result = append(result, models.MakeupStudent{ID: id, DisplayName: item.lookup(studentNamePaths...)})
	}
	return result, nil
}

// Credits normalizes a student's credits. Status filtering is left to the caller.
func (n *Normalizer) Credits(raw []byte) ([]models.MakeupCredit, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	result := make([]models.MakeupCredit, 0, len(items))
	for _, item := range items {
		id := item.lookup(creditIDPaths...)
		if id == "" {
			continue
		}
		result = append(result, models.MakeupCredit{
			ID:              id,
			Status:          item.lookup(creditStatusPaths...),
			SourceSessionID: item.lookup(creditSourcePaths...),
		})
	}
	return result, nil
}

// SourceSession normalizes a single session lookup. It returns nil when the payload holds no session.
func (n *Normalizer) SourceSession(raw []byte) (*models.SourceSession, error) {
	value, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	item, ok := unwrapObject(value, sessionIDPaths)
	if !ok {
		return nil, nil
	}
	id := item.lookup(sessionIDPaths...)
	if id == "" {
		return nil, nil
	}
	return &models.SourceSession{
		ID:              id,
		ClassID:         item.lookup(sessionClassIDPaths...),
		ClassCode:       item.lookup(sessionClassCode...),
		ClassTitle:      item.lookup(sessionClassName...),
		PlannedDatetime: item.lookup(plannedPaths...),
		PlannedRoomName: item.lookup(roomPaths...),
		BranchName:      item.lookup(branchPaths...),
	}, nil
}

// Suggestions flattens either the flat or the class-grouped suggestion shape.
func (n *Normalizer) Suggestions(raw []byte) ([]models.MakeupSessionOption, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	entries := make([]suggestionEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, classifySuggestion(item))
	}
	return flattenSuggestions(entries), nil
}

// ManualClasses normalizes the unconstrained class catalog.
func (n *Normalizer) ManualClasses(raw []byte) ([]models.MakeupClassOption, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	result := make([]models.MakeupClassOption, 0, len(items))
	for _, item := range items {
		id := item.lookup(classIDPaths...)
		if id == "" {
			continue
		}
		result = append(result, models.MakeupClassOption{
			ID:   id,
			Code: item.lookup(classCodePaths...),
			Name: item.lookup(classNamePaths...),
		})
	}
	return result, nil
}

// ManualSessions normalizes the sessions of one class; they share the suggestion shape.
func (n *Normalizer) ManualSessions(raw []byte) ([]models.MakeupSessionOption, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	entries := make([]suggestionEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, suggestionEntry{kind: suggestionFlat, flat: item})
	}
	return flattenSuggestions(entries), nil
}

type suggestionKind int

const (
	suggestionFlat suggestionKind = iota
	suggestionGrouped
)

// suggestionEntry is the tagged union of the two upstream suggestion shapes.
type suggestionEntry struct {
	kind     suggestionKind
	flat     rawRecord
	group    rawRecord
	sessions []rawRecord
}

func classifySuggestion(item rawRecord) suggestionEntry {
	nested, ok := item[groupSessionsKey].([]interface{})
	if !ok {
		return suggestionEntry{kind: suggestionFlat, flat: item}
	}
	sessions := make([]rawRecord, 0, len(nested))
	for _, child := range nested {
		if rec, ok := child.(map[string]interface{}); ok {
			sessions = append(sessions, rawRecord(rec))
		}
	}
	return suggestionEntry{kind: suggestionGrouped, group: item, sessions: sessions}
}

func flattenSuggestions(entries []suggestionEntry) []models.MakeupSessionOption {
	result := make([]models.MakeupSessionOption, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	add := func(opt models.MakeupSessionOption) {
		if opt.SessionID == "" {
			return
		}
		if _, dup := seen[opt.SessionID]; dup {
			return
		}
		seen[opt.SessionID] = struct{}{}
		result = append(result, opt)
	}

	for _, entry := range entries {
		switch entry.kind {
		case suggestionFlat:
			add(sessionOption(entry.flat))
		case suggestionGrouped:
			parentID := entry.group.lookup(groupClassIDPaths...)
			parentCode := entry.group.lookup(groupClassCodePaths...)
			parentTitle := entry.group.lookup(groupClassTitlePaths...)
			for _, child := range entry.sessions {
				opt := sessionOption(child)
				opt.ClassID = firstNonEmpty(opt.ClassID, parentID)
				opt.ClassCode = firstNonEmpty(opt.ClassCode, parentCode)
				opt.ClassName = firstNonEmpty(opt.ClassName, parentTitle)
				add(opt)
			}
		}
	}
	return result
}

func sessionOption(item rawRecord) models.MakeupSessionOption {
	return models.MakeupSessionOption{
		ClassID:         item.lookup(sessionClassIDPaths...),
		ClassName:       item.lookup(sessionClassName...),
		ClassCode:       item.lookup(sessionClassCode...),
		SessionID:       item.lookup(sessionIDPaths...),
		PlannedDatetime: item.lookup(plannedPaths...),
	}
}

type rawRecord map[string]interface{}

// lookup returns the first non-empty scalar found along the candidate paths, or "".
func (r rawRecord) lookup(paths ...string) string {
	for _, path := range paths {
		if value := scalarString(r.walk(path)); value != "" {
			return value
		}
	}
	return ""
}

func (r rawRecord) walk(path string) interface{} {
	var current interface{} = map[string]interface{}(r)
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return current
}

func scalarString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := v.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func decodeJSON(raw []byte) (interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode upstream payload: %w", err)
	}
	return value, nil
}

func decodeList(raw []byte) ([]rawRecord, error) {
	value, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	list := unwrapList(value)
	records := make([]rawRecord, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]interface{}); ok {
			records = append(records, rawRecord(obj))
		}
	}
	return records, nil
}

func unwrapList(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, path := range listEnvelopePaths {
			if list, ok := rawRecord(v).walk(path).([]interface{}); ok {
				return list
			}
		}
	}
	return nil
}

// unwrapObject accepts a bare object, an object under "data", or a one-element list.
func unwrapObject(value interface{}, idPaths []string) (rawRecord, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		rec := rawRecord(v)
		if rec.lookup(idPaths...) != "" {
			return rec, true
		}
		if inner, ok := v["data"]; ok {
			return unwrapObject(inner, idPaths)
		}
		return rec, true
	case []interface{}:
		if len(v) > 0 {
			return unwrapObject(v[0], idPaths)
		}
	}
	return nil, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
