// Package weberr attaches HTTP responses and log fields to errors so that
// handlers can return them and the Errors middleware renders them.
package weberr

import "errors"

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse sets the body and status rendered for err. The outermost
// response in a chain wins.
func WithResponse(body interface{}, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// WithFields adds structured log fields to err. Fields added later shadow
// earlier ones with the same key.
func WithFields(fields map[string]interface{}) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

func Response(err error) (body interface{}, status int, ok bool) {
	var re *responseError
	if errors.As(err, &re) {
		return re.body, re.status, true
	}
	return nil, 0, false
}

// Fields merges the log fields found anywhere in the chain of err.
func Fields(err error) (map[string]interface{}, bool) {
	var merged map[string]interface{}

	for err != nil {
		var fe *fieldsError
		if !errors.As(err, &fe) {
			break
		}
		if merged == nil {
			merged = make(map[string]interface{}, len(fe.fields))
		}
		for k, v := range fe.fields {
			if _, set := merged[k]; !set {
				merged[k] = v
			}
		}
		err = fe.error
	}

	return merged, merged != nil
}

type responseError struct {
	error
	body   interface{}
	status int
}

func (e *responseError) Unwrap() error { return e.error }

type fieldsError struct {
	error
	fields map[string]interface{}
}

func (e *fieldsError) Unwrap() error { return e.error }
