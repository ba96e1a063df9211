package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/progress"
)

// LogTimeSpec describes one block of work to record.
type LogTimeSpec struct {
	ItemID      string
	UserID      string
	Hours       float64
	Description string
	// Date defaults to the current time.
	Date time.Time
}

// LogTime appends a time entry and returns the item's updated time summary.
func (s *Service) LogTime(ctx context.Context, spec LogTimeSpec) (progress.TimeSummary, error) {
	if spec.Hours <= 0 || math.IsNaN(spec.Hours) || math.IsInf(spec.Hours, 0) {
		return progress.TimeSummary{}, s.reject("log_time", model.Invalid("hours", "must be greater than zero, got %v", spec.Hours))
	}
	if _, err := s.requireUser(ctx, "user", spec.UserID); err != nil {
		return progress.TimeSummary{}, s.reject("log_time", err)
	}

	unlock := s.locks.Lock(spec.ItemID)
	defer unlock()

	item, err := s.store.LoadItem(ctx, spec.ItemID)
	if err != nil {
		return progress.TimeSummary{}, err
	}

	now := s.now()
	date := spec.Date
	if date.IsZero() {
		date = now
	}
	entry := model.TimeEntry{
		ID:          s.newID("te"),
		ItemID:      item.ID,
		AuthorID:    spec.UserID,
		Hours:       spec.Hours,
		Description: spec.Description,
		Date:        date,
		CreatedAt:   now,
	}
	if err := s.store.InsertTimeEntry(ctx, entry); err != nil {
		return progress.TimeSummary{}, err
	}

	s.metrics.hoursLogged.Add(spec.Hours)
	s.log.Info("time logged", "item", item.ID, "user", spec.UserID, "hours", spec.Hours)
	item.TimeEntries = append(item.TimeEntries, entry)
	return progress.TimeProgress(item.TimeEntries, item.EstimatedHours), nil
}

// DeleteTimeEntry removes a time entry. Only its author may delete it.
func (s *Service) DeleteTimeEntry(ctx context.Context, entryID, itemID, actorID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	entry, err := s.store.TimeEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.ItemID != itemID {
		return model.NotFound("time entry", entryID)
	}
	if err := s.authorize(ctx, actorID, entry.AuthorID, "time entry", entryID); err != nil {
		return s.reject("time_rm", err, "item", itemID)
	}
	if err := s.store.DeleteTimeEntry(ctx, entryID); err != nil {
		return err
	}
	s.log.Info("time entry deleted", "item", itemID, "entry", entryID)
	return nil
}

// authorize allows actorID to remove a record only when it is the record's
// owner and a known user.
func (s *Service) authorize(ctx context.Context, actorID, ownerID, what, id string) error {
	if actorID == "" {
		return fmt.Errorf("no actor for %s %s: %w", what, id, model.ErrForbidden)
	}
	if _, err := s.identity.ResolveUser(ctx, actorID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("unknown actor %s: %w", actorID, model.ErrForbidden)
		}
		return err
	}
	if actorID != ownerID {
		return fmt.Errorf("%s may not remove %s %s owned by %s: %w", actorID, what, id, ownerID, model.ErrForbidden)
	}
	return nil
}

// mentionPattern matches @username tokens that do not sit inside a word,
// so e-mail addresses are not treated as mentions.
var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_][A-Za-z0-9_.-]*)`)

// ParseMentionTokens returns the distinct usernames mentioned in content, in
// order of first appearance.
func ParseMentionTokens(content string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimRight(m[1], ".-")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// resolveMentions maps tokens to known users, skipping unknown ones and
// collapsing tokens that resolve to the same user.
func (s *Service) resolveMentions(ctx context.Context, content string) ([]model.Mention, error) {
	var mentions []model.Mention
	seen := map[string]bool{}
	for _, name := range ParseMentionTokens(content) {
		u, err := s.identity.ResolveUsername(ctx, name)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		mentions = append(mentions, model.Mention{UserID: u.ID, Username: u.Username})
	}
	return mentions, nil
}

// AddComment posts a comment. @username tokens that name known users are
// recorded as mentions; the content is stored exactly as given.
func (s *Service) AddComment(ctx context.Context, itemID, authorID, content string) (model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return model.Comment{}, s.reject("comment", model.Invalid("content", "comment cannot be empty"))
	}
	if _, err := s.requireUser(ctx, "author", authorID); err != nil {
		return model.Comment{}, s.reject("comment", err)
	}

	unlock := s.locks.Lock(itemID)
	defer unlock()

	if _, err := s.store.LoadItem(ctx, itemID); err != nil {
		return model.Comment{}, err
	}
	mentions, err := s.resolveMentions(ctx, content)
	if err != nil {
		return model.Comment{}, err
	}

	c := model.Comment{
		ID:        s.newID("cm"),
		ItemID:    itemID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: s.now(),
		Mentions:  mentions,
	}
	if err := s.store.InsertComment(ctx, c); err != nil {
		return model.Comment{}, err
	}
	s.log.Info("comment added", "item", itemID, "author", authorID, "mentions", len(mentions))
	return c, nil
}

// DeleteComment removes a comment. Only its author may delete it.
func (s *Service) DeleteComment(ctx context.Context, commentID, itemID, actorID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	c, err := s.store.Comment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.ItemID != itemID {
		return model.NotFound("comment", commentID)
	}
	if err := s.authorize(ctx, actorID, c.AuthorID, "comment", commentID); err != nil {
		return s.reject("comment_rm", err, "item", itemID)
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.log.Info("comment deleted", "item", itemID, "comment", commentID)
	return nil
}

// AttachmentSpec is the metadata of a file already stored elsewhere.
type AttachmentSpec struct {
	ItemID     string
	Filename   string
	Size       int64
	MimeType   string
	UploaderID string
	URL        string
}

// AddAttachment records attachment metadata against an item.
func (s *Service) AddAttachment(ctx context.Context, spec AttachmentSpec) (model.Attachment, error) {
	filename := strings.TrimSpace(spec.Filename)
	switch {
	case filename == "":
		return model.Attachment{}, s.reject("attach", model.Invalid("filename", "filename cannot be empty"))
	case spec.Size < 0:
		return model.Attachment{}, s.reject("attach", model.Invalid("size", "size cannot be negative"))
	}
	if _, err := s.requireUser(ctx, "uploader", spec.UploaderID); err != nil {
		return model.Attachment{}, s.reject("attach", err)
	}

	unlock := s.locks.Lock(spec.ItemID)
	defer unlock()

	if _, err := s.store.LoadItem(ctx, spec.ItemID); err != nil {
		return model.Attachment{}, err
	}

	mime := spec.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	a := model.Attachment{
		ID:         s.newID("at"),
		ItemID:     spec.ItemID,
		Filename:   filename,
		Size:       spec.Size,
		MimeType:   mime,
		UploaderID: spec.UploaderID,
		URL:        spec.URL,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertAttachment(ctx, a); err != nil {
		return model.Attachment{}, err
	}
	s.log.Info("attachment added", "item", spec.ItemID, "attachment", a.ID, "filename", filename)
	return a, nil
}

// RemoveAttachment deletes attachment metadata. Only the uploader may
// remove it.
func (s *Service) RemoveAttachment(ctx context.Context, attachmentID, itemID, actorID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	a, err := s.store.Attachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if a.ItemID != itemID {
		return model.NotFound("attachment", attachmentID)
	}
	if err := s.authorize(ctx, actorID, a.UploaderID, "attachment", attachmentID); err != nil {
		return s.reject("detach", err, "item", itemID)
	}
	if err := s.store.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	s.log.Info("attachment removed", "item", itemID, "attachment", attachmentID)
	return nil
}
