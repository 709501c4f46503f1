package http

import (
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
	"scoreboard/internal/server/core"
	"scoreboard/internal/server/processor"

	"github.com/gofiber/fiber/v2"
)

// ListMatches returns a dashboard page; ?limit=&hideEnded=&championship=
func (h *HTTPHandler) ListMatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 || limit > 500 {
		return badRequest(c, "invalid limit", "limit must be between 0 and 500")
	}
	cmd := processor.NewListMatchesCommand(processor.ListArgs{
		HideEnded:    c.QueryBool("hideEnded", false),
		Limit:        limit,
		Championship: c.Query("championship"),
	})
	return respond(c, h.proc.Execute(c.UserContext(), cmd), fiber.StatusOK)
}

// CreateMatch stores a new match for the signed-in operator
func (h *HTTPHandler) CreateMatch(c *fiber.Ctx) error {
	req, ok := validatedBody[lifecycle.CreateRequest](c)
	if !ok {
		return nil
	}
	cmd := processor.NewCreateMatchCommand(req, identityOf(c))
	return respond(c, h.proc.Execute(c.UserContext(), cmd), fiber.StatusCreated)
}

// GetMatch returns a match with its observer-computed status and clock
func (h *HTTPHandler) GetMatch(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewGetMatchCommand(matchID)), fiber.StatusOK)
}

// Widget serves the overlay view of a match, goals included
func (h *HTTPHandler) Widget(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewWidgetCommand(matchID)), fiber.StatusOK)
}

// DeleteMatch removes a match and its goals
func (h *HTTPHandler) DeleteMatch(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewDeleteMatchCommand(matchID)), fiber.StatusOK)
}

func (h *HTTPHandler) halfCommand(c *fiber.Ctx, build func(string, int) processor.Command) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	half, err := c.ParamsInt("half")
	if err != nil || (half != 1 && half != 2) {
		return badRequest(c, "invalid half", "half must be 1 or 2")
	}
	return respond(c, h.proc.Execute(c.UserContext(), build(matchID, half)), fiber.StatusOK)
}

// StartHalf starts the first or second half
func (h *HTTPHandler) StartHalf(c *fiber.Ctx) error {
	return h.halfCommand(c, processor.NewStartHalfCommand)
}

// StopHalf stops the running half
func (h *HTTPHandler) StopHalf(c *fiber.Ctx) error {
	return h.halfCommand(c, processor.NewStopHalfCommand)
}

// EndMatch finishes a match
func (h *HTTPHandler) EndMatch(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewEndMatchCommand(matchID)), fiber.StatusOK)
}

// ChangeScore applies a delta to one side's score
func (h *HTTPHandler) ChangeScore(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[core.ScoreRequest](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewChangeScoreCommand(matchID, req)), fiber.StatusOK)
}

// UpdateDate sets the match calendar date
func (h *HTTPHandler) UpdateDate(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[core.DateRequest](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewUpdateDateCommand(matchID, req)), fiber.StatusOK)
}

// ListGoals returns a match's goals in display order
func (h *HTTPHandler) ListGoals(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewListGoalsCommand(matchID)), fiber.StatusOK)
}

// RecordGoal records a goal and bumps the attributed side's score
func (h *HTTPHandler) RecordGoal(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[core.GoalRequest](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewRecordGoalCommand(matchID, req)), fiber.StatusCreated)
}

// RequestRemoval resolves the minus button for a side
func (h *HTTPHandler) RequestRemoval(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[core.RemovalRequest](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewRequestRemovalCommand(matchID, req)), fiber.StatusOK)
}

// RemoveGoal deletes a goal chosen by the operator; ?side= names the score to decrement
func (h *HTTPHandler) RemoveGoal(c *fiber.Ctx) error {
	matchID, ok := paramID(c, "matchId")
	if !ok {
		return nil
	}
	goalID, ok := paramID(c, "goalId")
	if !ok {
		return nil
	}
	side, err := model.ParseSide(c.Query("side"))
	if err != nil {
		return badRequest(c, "invalid side", err.Error())
	}
	cmd := processor.NewRemoveGoalCommand(matchID, goalID, core.RemoveGoalRequest{Side: int(side)})
	return respond(c, h.proc.Execute(c.UserContext(), cmd), fiber.StatusOK)
}
