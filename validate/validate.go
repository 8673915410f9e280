package validate

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
	"github.com/irsalhamdi/e-learning/apperr"
)

var validate *validator.Validate

var translator ut.Translator

func init() {
	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)
}

// Check validates struct tags and reports the first failing field as a
// validation error.
func Check(val any) error {
	if err := validate.Struct(val); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		return apperr.Validation("%s", verrors[0].Translate(translator))
	}

	return nil
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("ID is not in its proper form")
	}
	return nil
}

// CheckIDs checks every named id and reports the first malformed one by name.
func CheckIDs(ids map[string]string) error {
	for name, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return apperr.Validation("%s is not in its proper form", name)
		}
	}
	return nil
}
