package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/gate"
)

// sessionEvent is the wire form of a gate.Event.
type sessionEvent struct {
	Type         string                    `json:"type"`
	ParcelID     string                    `json:"parcel_id"`
	Candidates   []domain.CandidateParcel  `json:"candidates"`
	InputMethod  domain.InputMethod        `json:"input_method"`
	Warning      *domain.SelectionWarning  `json:"warning"`
	Code         string                    `json:"code"`
	Verification domain.VerificationChecks `json:"verification"`
	Phrase       string                    `json:"phrase"`
}

func (e sessionEvent) toEvent() (gate.Event, error) {
	switch e.Type {
	case "set_candidates":
		return gate.SetCandidates{Candidates: e.Candidates, Method: e.InputMethod}, nil
	case "focus":
		return gate.Focus{ParcelID: e.ParcelID}, nil
	case "blur":
		return gate.Blur{}, nil
	case "add_warning":
		if e.Warning == nil {
			return nil, fmt.Errorf("add_warning requires a warning")
		}
		return gate.AddWarning{Warning: *e.Warning}, nil
	case "acknowledge":
		return gate.Acknowledge{Code: e.Code}, nil
	case "confirm":
		return gate.Confirm{ParcelID: e.ParcelID, Verification: e.Verification, Phrase: e.Phrase}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// StartSessionHandler opens a selection session, optionally seeded with
// candidates.
func StartSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var seed sessionEvent
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&seed); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		sess := deps.Selection.Start()
		snap, err := sess.Snapshot(c.UserContext())
		if len(seed.Candidates) > 0 {
			snap, err = sess.Dispatch(c.UserContext(), gate.SetCandidates{Candidates: seed.Candidates, Method: seed.InputMethod})
		}
		if err != nil {
			_ = deps.Selection.Abandon(sess.ID())
			return handleError(c, err, nil)
		}
		c.Location("/v1/sessions/" + sess.ID())
		return c.Status(fiber.StatusCreated).JSON(snap)
	}
}

// GetSessionHandler returns a session snapshot.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Selection.Get(c.Params("id"))
		if err != nil {
			return handleError(c, err, nil)
		}
		snap, err := sess.Snapshot(c.UserContext())
		if err != nil {
			return handleError(c, err, nil)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(snap)
	}
}

// SessionEventHandler applies one transition. A refused transition returns
// 409 with the gate reason as code and the unchanged state as details.
func SessionEventHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body sessionEvent
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		ev, err := body.toEvent()
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Selection.Dispatch(c.UserContext(), c.Params("id"), ev)
		if err != nil {
			if snap.SessionID == "" {
				return handleError(c, err, nil)
			}
			return handleError(c, err, snap)
		}
		return c.JSON(snap)
	}
}

// ChangeParcelHandler replaces a session with a fresh one over the same
// candidates.
func ChangeParcelHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		next, err := deps.Selection.ChangeParcel(c.UserContext(), c.Params("id"))
		if err != nil {
			return handleError(c, err, nil)
		}
		snap, err := next.Snapshot(c.UserContext())
		if err != nil {
			return handleError(c, err, nil)
		}
		c.Location("/v1/sessions/" + next.ID())
		return c.Status(fiber.StatusCreated).JSON(snap)
	}
}

// SessionLockHandler returns the parcel a session locked.
func SessionLockHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lock, err := deps.Selection.Lock(c.UserContext(), c.Params("id"))
		if err != nil {
			return handleError(c, err, nil)
		}
		return c.JSON(lock)
	}
}

// AbandonSessionHandler closes a session.
func AbandonSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Selection.Abandon(c.Params("id")); err != nil {
			return handleError(c, err, nil)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
