package mcpproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationTemplateValuesOmitsStateOutsideUS(t *testing.T) {
	loc := Location{Country: "DE", State: "Bavaria", City: "Munich"}
	values := loc.templateValues()

	assert.Equal(t, "de", values["country"])
	assert.Equal(t, "munich", values["city"])
	_, hasState := values["state"]
	assert.False(t, hasState, "state should be dropped for non-US country")
}

func TestLocationTemplateValuesIncludesStateForUS(t *testing.T) {
	loc := Location{Country: "US", State: "California"}
	values := loc.templateValues()

	assert.Equal(t, "us", values["country"])
	assert.Equal(t, "california", values["state"])
}

func TestLocationCityCompactedDerivedWhenAbsent(t *testing.T) {
	loc := Location{Country: "us", City: "San Francisco"}
	values := loc.templateValues()

	assert.Equal(t, "sanfrancisco", values["city_compacted"])
}

func TestLocationHierarchyMostSpecificFirst(t *testing.T) {
	loc := Location{Country: "us", State: "ca", City: "sf", PostalCode: "94107"}
	levels := loc.hierarchy([]string{"state", "city", "postal_code"})

	assert.Len(t, levels, 4, "expected 3 field levels plus country-only")
	assert.Equal(t, "94107", levels[0].PostalCode)
	assert.Equal(t, "", levels[len(levels)-1].PostalCode)
	assert.Equal(t, "us", levels[len(levels)-1].Country)
}

func TestLocationHierarchyEmptyFieldsMeansExactOnly(t *testing.T) {
	loc := Location{Country: "us", City: "sf"}
	levels := loc.hierarchy(nil)

	assert.Len(t, levels, 1)
	assert.Equal(t, "sf", levels[0].City)
}
