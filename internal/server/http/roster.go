package http

import (
	"scoreboard/internal/roster"
	"scoreboard/internal/server/core"
	"scoreboard/internal/server/processor"

	"github.com/gofiber/fiber/v2"
)

func (h *HTTPHandler) ListTeams(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewListTeamsCommand()), fiber.StatusOK)
}

func (h *HTTPHandler) GetTeam(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewGetTeamCommand(teamID)), fiber.StatusOK)
}

// SaveTeam upserts the operator's team by name; 201 when created
func (h *HTTPHandler) SaveTeam(c *fiber.Ctx) error {
	req, ok := validatedBody[roster.TeamInput](c)
	if !ok {
		return nil
	}
	resp := h.proc.Execute(c.UserContext(), processor.NewSaveTeamCommand(req, identityOf(c)))
	status := fiber.StatusOK
	if saved, ok := resp.Data.(core.TeamResponse); ok && saved.Created {
		status = fiber.StatusCreated
	}
	return respond(c, resp, status)
}

func (h *HTTPHandler) DeleteTeam(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewDeleteTeamCommand(teamID)), fiber.StatusOK)
}

func (h *HTTPHandler) SetBadges(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[roster.BadgeInput](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewSetBadgesCommand(teamID, req)), fiber.StatusOK)
}

// ListPlayers returns a team's players by number; ?active=true drops absent ones
func (h *HTTPHandler) ListPlayers(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	cmd := processor.NewListPlayersCommand(teamID, c.QueryBool("active", false))
	return respond(c, h.proc.Execute(c.UserContext(), cmd), fiber.StatusOK)
}

func (h *HTTPHandler) AddPlayer(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[roster.PlayerInput](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewAddPlayerCommand(teamID, req)), fiber.StatusCreated)
}

func (h *HTTPHandler) UpdatePlayer(c *fiber.Ctx) error {
	playerID, ok := paramID(c, "playerId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[roster.PlayerInput](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewUpdatePlayerCommand(playerID, req)), fiber.StatusOK)
}

func (h *HTTPHandler) ToggleAbsent(c *fiber.Ctx) error {
	playerID, ok := paramID(c, "playerId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewToggleAbsentCommand(playerID)), fiber.StatusOK)
}

func (h *HTTPHandler) DeletePlayer(c *fiber.Ctx) error {
	playerID, ok := paramID(c, "playerId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewDeletePlayerCommand(playerID)), fiber.StatusOK)
}

func (h *HTTPHandler) GetCoach(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewGetCoachCommand(teamID)), fiber.StatusOK)
}

func (h *HTTPHandler) SaveCoach(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	req, ok := validatedBody[roster.CoachInput](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewSaveCoachCommand(teamID, req)), fiber.StatusOK)
}

func (h *HTTPHandler) DeleteCoach(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "teamId")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewDeleteCoachCommand(teamID)), fiber.StatusOK)
}

func (h *HTTPHandler) ListChampionships(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewListChampionshipsCommand()), fiber.StatusOK)
}

func (h *HTTPHandler) SaveChampionship(c *fiber.Ctx) error {
	req, ok := validatedBody[core.ChampionshipRequest](c)
	if !ok {
		return nil
	}
	cmd := processor.NewSaveChampionshipCommand(req, identityOf(c))
	return respond(c, h.proc.Execute(c.UserContext(), cmd), fiber.StatusOK)
}

func (h *HTTPHandler) DeleteChampionship(c *fiber.Ctx) error {
	key, ok := paramID(c, "key")
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewDeleteChampionshipCommand(key)), fiber.StatusOK)
}

// GetDefaultTeam returns the tracked team, empty when unset
func (h *HTTPHandler) GetDefaultTeam(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewGetDefaultTeamCommand()), fiber.StatusOK)
}

func (h *HTTPHandler) SetDefaultTeam(c *fiber.Ctx) error {
	req, ok := validatedBody[core.DefaultTeamRequest](c)
	if !ok {
		return nil
	}
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewSetDefaultTeamCommand(req)), fiber.StatusOK)
}
