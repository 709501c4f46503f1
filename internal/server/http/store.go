package http

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"scoreboard/internal/server/core"
	"scoreboard/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"
)

func storePath(c *fiber.Ctx) (store.Path, bool) {
	collection, ok := paramID(c, "collection")
	if !ok {
		return "", false
	}
	key := c.Params("key")
	if key == "" {
		return store.Path(collection), true
	}
	if !validKey(key) {
		_ = badRequest(c, "invalid key format", "key must be a single store segment")
		return "", false
	}
	return store.Join(collection, key), true
}

// GetCollection reads a collection. ?field=&equal= runs an equality query
// on a child field; ?wait=true&version=N long-polls like GetNode.
func (h *HTTPHandler) GetCollection(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	if field := c.Query("field"); field != "" {
		return h.query(c, path.Collection(), field, c.Query("equal"))
	}
	return h.snapshot(c, path)
}

// GetNode reads a node; with ?wait=true&version=N the request parks until
// the node's version moves past N or the wait times out.
func (h *HTTPHandler) GetNode(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	return h.snapshot(c, path)
}

func (h *HTTPHandler) query(c *fiber.Ctx, collection, field, equal string) error {
	if !gjson.Valid(equal) {
		return badRequest(c, "invalid query value", "equal must be a JSON value")
	}
	children, err := h.svc.Store().QueryEqual(c.UserContext(), collection, field, json.RawMessage(equal))
	if err != nil {
		return errorJSON(c, err)
	}
	if children == nil {
		children = []store.Child{}
	}
	return c.JSON(core.QueryResponse{Collection: collection, Field: field, Children: children})
}

func (h *HTTPHandler) snapshot(c *fiber.Ctx, path store.Path) error {
	if c.Query("wait") != "true" {
		snap, err := h.svc.Store().Get(c.UserContext(), path)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(snap)
	}

	version, err := strconv.ParseUint(c.Query("version", "0"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid version", "version must be a non-negative integer")
	}

	ctx, cancel := context.WithCancel(c.UserContext())
	defer cancel()

	// Register before reading so a commit in between still wakes us
	notify := h.svc.RegisterWait(ctx, path, version)

	snap, err := h.svc.Store().Get(ctx, path)
	if err != nil {
		return errorJSON(c, err)
	}
	if snap.Version != version {
		return c.JSON(snap)
	}

	select {
	case <-notify:
	case <-ctx.Done():
		return errorJSON(c, fmt.Errorf("%w: wait cancelled: %v", store.ErrUnavailable, ctx.Err()))
	}

	snap, err = h.svc.Store().Get(ctx, path)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(snap)
}

// bodyCopy detaches the request body from fasthttp's reused buffer
func bodyCopy(c *fiber.Ctx) []byte {
	return append([]byte(nil), c.Body()...)
}

func ifVersion(c *fiber.Ctx, m store.Mutation) (store.Mutation, bool) {
	raw := c.Query("ifVersion")
	if raw == "" {
		return m, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		_ = badRequest(c, "invalid ifVersion", "ifVersion must be a non-negative integer")
		return m, false
	}
	return m.Versioned(v), true
}

func (h *HTTPHandler) commit(c *fiber.Ctx, muts ...store.Mutation) error {
	if err := h.svc.Store().Commit(c.UserContext(), muts...); err != nil {
		return errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetNode overwrites a node with the raw JSON body
func (h *HTTPHandler) SetNode(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	body := bodyCopy(c)
	if !gjson.ValidBytes(body) {
		return badRequest(c, "invalid request body", "body must be a JSON value")
	}
	m, ok := ifVersion(c, store.Mutation{Op: store.OpSet, Path: path, Value: json.RawMessage(body)})
	if !ok {
		return nil
	}
	return h.commit(c, m)
}

// MergeNode merges the top-level fields of a JSON object body into a node
func (h *HTTPHandler) MergeNode(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	body := c.Body()
	parsed := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !parsed.IsObject() {
		return badRequest(c, "invalid request body", "body must be a JSON object")
	}

	fields := make(map[string]json.RawMessage)
	parsed.ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = json.RawMessage(value.Raw)
		return true
	})
	m, ok := ifVersion(c, store.Mutation{Op: store.OpMerge, Path: path, Fields: fields})
	if !ok {
		return nil
	}
	return h.commit(c, m)
}

// PushNode stores the body under a generated key
func (h *HTTPHandler) PushNode(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	body := bodyCopy(c)
	if !gjson.ValidBytes(body) {
		return badRequest(c, "invalid request body", "body must be a JSON value")
	}

	key := store.NewKey()
	node := store.Join(path.Collection(), key)
	m := store.Mutation{Op: store.OpSet, Path: node, Value: json.RawMessage(body)}
	if err := h.svc.Store().Commit(c.UserContext(), m.Versioned(0)); err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(core.PushResponse{Key: key, Path: node})
}

// DeleteNode removes a node, or every node of a collection
func (h *HTTPHandler) DeleteNode(c *fiber.Ctx) error {
	path, ok := storePath(c)
	if !ok {
		return nil
	}
	m, ok := ifVersion(c, store.DeleteOf(path))
	if !ok {
		return nil
	}
	return h.commit(c, m)
}

// Commit applies a batch of mutations atomically
func (h *HTTPHandler) Commit(c *fiber.Ctx) error {
	req, ok := validatedBody[core.CommitRequest](c)
	if !ok {
		return nil
	}
	return h.commit(c, req.Mutations...)
}
