package course

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/validate"
)

func HandleShow(courses *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.Classify(err)
		}

		c, err := courses.Fetch(ctx, id)
		if err != nil {
			return weberr.Classify(fmt.Errorf("fetching course[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("course", "course", c), http.StatusOK)
	}
}

func HandleList(courses *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := courses.List(ctx)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		return web.Respond(ctx, w, web.OK("courses", "courses", cs), http.StatusOK)
	}
}

func HandleCreate(courses *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in CourseNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		currency := in.Currency
		if currency == "" {
			currency = "INR"
		}
		units := in.Units
		if units == nil {
			units = Units{}
		}

		now := time.Now().UTC()
		c := Course{
			ID:          validate.GenerateID(),
			Name:        in.Name,
			Description: in.Description,
			ImageURL:    in.ImageURL,
			Price:       in.Price,
			Currency:    currency,
			Units:       units,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		if err := courses.Create(ctx, c); err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, web.OK("course created", "course", c), http.StatusCreated)
	}
}
