package model

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags on a record or request
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// decode unmarshals raw JSON into T and validates it
func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := Validate(&v); err != nil {
		return v, err
	}
	return v, nil
}

// DecodeMatch parses the value stored at matches/{id}
func DecodeMatch(id string, raw []byte) (Match, error) {
	m, err := decode[Match](raw)
	if err != nil {
		return m, fmt.Errorf("match %s: %w", id, err)
	}
	m.ID = id
	return m, nil
}

// DecodeGoal parses the value stored at goals/{id}
func DecodeGoal(id string, raw []byte) (Goal, error) {
	g, err := decode[Goal](raw)
	if err != nil {
		return g, fmt.Errorf("goal %s: %w", id, err)
	}
	g.ID = id
	return g, nil
}

// DecodeTeam parses the value stored at teams/{id}
func DecodeTeam(id string, raw []byte) (Team, error) {
	t, err := decode[Team](raw)
	if err != nil {
		return t, fmt.Errorf("team %s: %w", id, err)
	}
	t.ID = id
	return t, nil
}

// DecodePlayer parses the value stored at players/{id}
func DecodePlayer(id string, raw []byte) (Player, error) {
	p, err := decode[Player](raw)
	if err != nil {
		return p, fmt.Errorf("player %s: %w", id, err)
	}
	p.ID = id
	return p, nil
}

// DecodeCoach parses the value stored at coaches/{teamId}
func DecodeCoach(raw []byte) (Coach, error) {
	return decode[Coach](raw)
}

// DecodeChampionship parses the value stored at championships/{key}
func DecodeChampionship(key string, raw []byte) (Championship, error) {
	c, err := decode[Championship](raw)
	if err != nil {
		return c, fmt.Errorf("championship %s: %w", key, err)
	}
	c.Key = key
	return c, nil
}
