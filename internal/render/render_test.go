package render

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"CampaignMailer/internal/models"
)

func TestBodySubstitutesMappedPlaceholders(t *testing.T) {
	tmpl := "Dear {{first}}, your code is {{code}}. {{code}} again. {{unknown}} stays."
	row := models.Row{"First Name": "Ada", "Code": "X1"}
	vars := []models.Variable{
		{Placeholder: "first", Column: "First Name"},
		{Placeholder: "code", Column: "Code"},
	}

	got := Body(tmpl, row, vars, "")
	assert.Equal(t, "Dear Ada, your code is X1. X1 again. {{unknown}} stays.", got)
}

func TestBodyLeavesPlaceholderWhenValueEmpty(t *testing.T) {
	tmpl := "Hello {{company}} / {{city}}"
	row := models.Row{"company": "", "other": "x"}
	vars := []models.Variable{
		{Placeholder: "company", Column: "company"},
		{Placeholder: "city", Column: "city"},
	}

	assert.Equal(t, tmpl, Body(tmpl, row, vars, ""))
}

func TestBodyUserPlaceholdersAreCaseSensitive(t *testing.T) {
	row := models.Row{"c": "Acme"}
	vars := []models.Variable{{Placeholder: "company", Column: "c"}}

	assert.Equal(t, "Acme {{Company}}", Body("{{company}} {{Company}}", row, vars, ""))
}

func TestNameIsCaseInsensitive(t *testing.T) {
	for _, tmpl := range []string{"Hi {{name}}", "Hi {{Name}}", "Hi {{NAME}}", "Hi {{nAmE}}"} {
		assert.Equal(t, "Hi Alice", Body(tmpl, nil, nil, "Alice"), tmpl)
	}
}

func TestNameMissingBecomesEmpty(t *testing.T) {
	assert.Equal(t, "Hi , welcome", Body("Hi {{name}}, welcome", nil, nil, ""))
}

func TestNameValueIsLiteral(t *testing.T) {
	assert.Equal(t, "Hi $1 & co", Name("Hi {{name}}", "$1 & co"))
}

func TestSubjectRenderedIndependently(t *testing.T) {
	assert.Equal(t, "Offer for Bob", Name("Offer for {{NAME}}", "Bob"))
}

func TestValueFormatsNumbers(t *testing.T) {
	row := models.Row{"n": float64(42), "f": 2.5, "i": 7}
	assert.Equal(t, "42", Value(row, "n"))
	assert.Equal(t, "2.5", Value(row, "f"))
	assert.Equal(t, "7", Value(row, "i"))
	assert.Equal(t, "", Value(row, "missing"))
}

func TestBodyConcurrentUse(t *testing.T) {
	tmpl := "Hi {{name}}, {{greeting}}"
	vars := []models.Variable{{Placeholder: "greeting", Column: "g"}}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := Body(tmpl, models.Row{"g": "hello"}, vars, "Sam")
			assert.Equal(t, "Hi Sam, hello", got)
		}()
	}
	wg.Wait()
}
