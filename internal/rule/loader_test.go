package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const credStuffingYAML = `
rules:
  - id: cred-stuffing-1
    name: Credential Stuffing
    severity: HIGH
    conditions:
      - type: auth_fail
        window: 120
        count: ">= 5"
        group_by: [user]
      - type: auth_success
        same_user: true
        after_previous: true
        within: 30
    actions:
      - message: "Credential stuffing detected"
`

func TestLoadRules_Basic(t *testing.T) {
	rules, errs := LoadRules([]byte(credStuffingYAML), DefaultDefaults())
	require.Empty(t, errs)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "cred-stuffing-1", r.ID)
	assert.Len(t, r.Conditions, 2)
	assert.Equal(t, CountPredicate{Op: ">=", N: 5}, r.Conditions[0].Count)
	assert.True(t, r.Conditions[1].AfterPrevious)
}

func TestLoadRules_DisabledRuleIgnored(t *testing.T) {
	doc := `
rules:
  - id: disabled-rule
    name: Disabled Rule
    severity: LOW
    enabled: false
    conditions:
      - type: auth_fail
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	assert.Empty(t, errs)
	assert.Empty(t, rules)
}

func TestLoadRules_EmptyConditionsIsValidationError(t *testing.T) {
	doc := `
rules:
  - id: bad-rule
    name: Bad Rule
    severity: LOW
    conditions: []
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	assert.Empty(t, rules)
	require.Len(t, errs, 1)
	assert.ErrorAs(t, errs[0], new(*ValidationError))
}

func TestLoadRules_MissingNameIsValidationError(t *testing.T) {
	doc := `
rules:
  - id: nameless-rule
    severity: LOW
    conditions:
      - type: auth_fail
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	assert.Empty(t, rules)
	require.Len(t, errs, 1)
	assert.ErrorAs(t, errs[0], new(*ValidationError))
}

func TestLoadRules_UnknownCountOperatorIsValidationError(t *testing.T) {
	doc := `
rules:
  - id: bad-count
    name: Bad Count
    severity: LOW
    conditions:
      - type: auth_fail
        count: "~~ 5"
    actions:
      - message: "x"
`
	_, errs := LoadRules([]byte(doc), DefaultDefaults())
	require.Len(t, errs, 1)
}

func TestLoadRules_NonPositiveWindowIsValidationError(t *testing.T) {
	doc := `
rules:
  - id: bad-window
    name: Bad Window
    severity: LOW
    conditions:
      - type: auth_fail
        window: -5
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	assert.Empty(t, rules)
	require.Len(t, errs, 1)
	assert.ErrorAs(t, errs[0], new(*ValidationError))
}

func TestLoadRules_NonPositiveWithinIsValidationError(t *testing.T) {
	doc := `
rules:
  - id: bad-within
    name: Bad Within
    severity: LOW
    conditions:
      - type: auth_fail
      - type: auth_success
        same_user: true
        after_previous: true
        within: 0
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	assert.Empty(t, rules)
	require.Len(t, errs, 1)
	assert.ErrorAs(t, errs[0], new(*ValidationError))
}

func TestLoadRules_DefaultsApplied(t *testing.T) {
	doc := `
rules:
  - id: defaults-rule
    name: Defaults Rule
    severity: LOW
    conditions:
      - type: dns_query
    actions:
      - message: "x"
`
	rules, errs := LoadRules([]byte(doc), DefaultDefaults())
	require.Empty(t, errs)
	require.Len(t, rules, 1)
	assert.Equal(t, CountPredicate{Op: ">=", N: 1}, rules[0].Conditions[0].Count)
	assert.Equal(t, Duration(60_000_000_000), rules[0].Conditions[0].Window)
}
