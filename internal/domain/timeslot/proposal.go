package timeslot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ProposalKind string

const (
	ProposalCreate ProposalKind = "create"
	ProposalModify ProposalKind = "modify"
	ProposalDelete ProposalKind = "delete"
)

// Proposal is one of CreateProposal, ModifyProposal or DeleteProposal.
type Proposal interface {
	Kind() ProposalKind
	proposal()
}

type CreateProposal struct {
	EntityID string
	StartAt  time.Time
	EndAt    time.Time
	Notes    *string
}

// ModifyProposal changes only the fields it sets.
type ModifyProposal struct {
	SlotID  uuid.UUID
	StartAt *time.Time
	EndAt   *time.Time
	Notes   *string
}

type DeleteProposal struct {
	SlotID uuid.UUID
	Reason *string
}

func (CreateProposal) Kind() ProposalKind { return ProposalCreate }
func (ModifyProposal) Kind() ProposalKind { return ProposalModify }
func (DeleteProposal) Kind() ProposalKind { return ProposalDelete }

func (CreateProposal) proposal() {}
func (ModifyProposal) proposal() {}
func (DeleteProposal) proposal() {}

// ===============================
// Wire decoding
// ===============================

// RawProposal is the loosely typed wire shape of a proposal.
type RawProposal struct {
	Op       string  `json:"op"`
	EntityID string  `json:"entityId,omitempty"`
	SlotID   string  `json:"slotId,omitempty"`
	StartAt  *string `json:"startAt,omitempty"`
	EndAt    *string `json:"endAt,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type InstantParser interface {
	ToStorageInstant(wire string) (time.Time, error)
}

func FieldPath(index int, field string) string {
	if field == "" {
		return fmt.Sprintf("proposals[%d]", index)
	}
	return fmt.Sprintf("proposals[%d].%s", index, field)
}

// DecodeProposals turns wire proposals into the closed union. Every problem
// is collected; the returned proposals are only meaningful when errs is empty.
func DecodeProposals(raw []RawProposal, parser InstantParser) ([]Proposal, ValidationErrors) {
	var (
		out  = make([]Proposal, 0, len(raw))
		errs ValidationErrors
	)

	missing := func(i int, field, msg string) {
		errs = append(errs, FieldError{Code: CodeMissingField, Field: FieldPath(i, field), Message: msg, Index: i})
	}

	instant := func(i int, field string, v *string) (*time.Time, bool) {
		if v == nil || strings.TrimSpace(*v) == "" {
			return nil, true
		}
		t, err := parser.ToStorageInstant(*v)
		if err != nil {
			errs = append(errs, FieldError{
				Code:    CodeInvalidDate,
				Field:   FieldPath(i, field),
				Message: fmt.Sprintf("unparsable date-time %q", *v),
				Index:   i,
			})
			return nil, false
		}
		return &t, true
	}

	slotID := func(i int, v string) (uuid.UUID, bool) {
		if strings.TrimSpace(v) == "" {
			missing(i, "slotId", "slotId is required")
			return uuid.Nil, false
		}
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, FieldError{
				Code:    CodeInvalidField,
				Field:   FieldPath(i, "slotId"),
				Message: fmt.Sprintf("slotId %q is not a valid identifier", v),
				Index:   i,
			})
			return uuid.Nil, false
		}
		return id, true
	}

	for i, r := range raw {
		switch ProposalKind(strings.ToLower(strings.TrimSpace(r.Op))) {
		case ProposalCreate:
			start, okStart := instant(i, "startAt", r.StartAt)
			end, okEnd := instant(i, "endAt", r.EndAt)
			if okStart && start == nil {
				missing(i, "startAt", "startAt is required")
			}
			if okEnd && end == nil {
				missing(i, "endAt", "endAt is required")
			}
			if start == nil || end == nil {
				continue
			}
			out = append(out, CreateProposal{
				EntityID: strings.TrimSpace(r.EntityID),
				StartAt:  *start,
				EndAt:    *end,
				Notes:    r.Notes,
			})

		case ProposalModify:
			id, okID := slotID(i, r.SlotID)
			start, okStart := instant(i, "startAt", r.StartAt)
			end, okEnd := instant(i, "endAt", r.EndAt)
			if okStart && okEnd && start == nil && end == nil && r.Notes == nil {
				missing(i, "", "modify requires startAt, endAt or notes")
				continue
			}
			if !okID || !okStart || !okEnd {
				continue
			}
			out = append(out, ModifyProposal{SlotID: id, StartAt: start, EndAt: end, Notes: r.Notes})

		case ProposalDelete:
			id, ok := slotID(i, r.SlotID)
			if !ok {
				continue
			}
			out = append(out, DeleteProposal{SlotID: id, Reason: r.Reason})

		default:
			errs = append(errs, FieldError{
				Code:    CodeInvalidField,
				Field:   FieldPath(i, "op"),
				Message: fmt.Sprintf("op must be one of create, modify, delete (got %q)", r.Op),
				Index:   i,
			})
		}
	}

	return out, errs
}
