package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intakeMessage(t *testing.T, err error) string {
	t.Helper()
	var ie *IntakeError
	require.True(t, errors.As(err, &ie), "expected IntakeError, got %T %v", err, err)
	return ie.Message
}

func TestProfitEngineIntakeRejections(t *testing.T) {
	in := NewProfitEngineIntake()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"engine":`, "Invalid JSON body."},
		{"missing engine", `{"job":{}}`, `Invalid engine. Expected "profit-engine".`},
		{"wrong engine", `{"engine":"zalara","job":{}}`, `Invalid engine. Expected "profit-engine".`},
		{"non-string engine", `{"engine":7,"job":{}}`, `Invalid engine. Expected "profit-engine".`},
		{"array body", `[1,2]`, `Invalid engine. Expected "profit-engine".`},
		{"missing job", `{"engine":"profit-engine"}`, "Missing job object."},
		{"null job", `{"engine":"profit-engine","job":null}`, "Missing job object."},
		{"string job", `{"engine":"profit-engine","job":"run"}`, "Missing job object."},
		{"array job", `{"engine":"profit-engine","job":[]}`, "Missing job object."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := in.Parse([]byte(tc.body))
			assert.Equal(t, tc.want, intakeMessage(t, err))
		})
	}
}

func TestProfitEngineIntakeSchemaViolations(t *testing.T) {
	in := NewProfitEngineIntake()

	for _, body := range []string{
		`{"engine":"profit-engine","job":{"priority":"urgent"}}`,
		`{"engine":"profit-engine","job":{"tags":["ok",3]}}`,
		`{"engine":"profit-engine","job":{"inputs":"week 1"}}`,
		`{"engine":"profit-engine","job":{"type":12}}`,
	} {
		_, _, err := in.Parse([]byte(body))
		assert.Contains(t, intakeMessage(t, err), "Invalid job:", body)
	}
}

func TestProfitEngineIntakeDefaults(t *testing.T) {
	in := NewProfitEngineIntake()

	job, echo, err := in.Parse([]byte(`{"engine":"profit-engine","job":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "profit-engine", echo)
	assert.Equal(t, "profit-engine", job.Engine)
	assert.Equal(t, "simulation", job.Type)
	assert.Nil(t, job.Preset)
	assert.Equal(t, PriorityNormal, job.Priority)
	assert.Equal(t, []string{}, job.Tags)

	out, err := json.Marshal(in.View(job))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"simulation","preset":null,"priority":"normal","tags":[]}`, string(out))
}

func TestProfitEngineIntakeParlayPilotPayload(t *testing.T) {
	in := NewProfitEngineIntake()
	body := `{
		"engine": "profit-engine",
		"job": {
			"type": "simulation",
			"preset": "nfl-aggro",
			"inputs": {"league": "NFL", "season": 2025, "week": 3},
			"priority": "high",
			"tags": ["parlay-pilot", "sim", "aggro"]
		}
	}`

	job, _, err := in.Parse([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, job.Preset)
	assert.Equal(t, "nfl-aggro", *job.Preset)
	assert.Equal(t, PriorityHigh, job.Priority)
	assert.Equal(t, []string{"parlay-pilot", "sim", "aggro"}, job.Tags)
	assert.Equal(t, "NFL", job.Inputs["league"])
	assert.Equal(t, float64(3), job.Inputs["week"])
	assert.Contains(t, string(job.Payload), "nfl-aggro")
	assert.Equal(t, http.StatusOK, in.AcceptedStatus())
}

func TestProfitEngineIntakeKeepsExplicitEmptyType(t *testing.T) {
	in := NewProfitEngineIntake()
	job, _, err := in.Parse([]byte(`{"engine":"profit-engine","job":{"type":"","priority":null}}`))
	require.NoError(t, err)
	assert.Equal(t, "", job.Type)
	assert.Equal(t, PriorityNormal, job.Priority)
}

func TestEmptyPriorityFallsBackToNormal(t *testing.T) {
	for _, tc := range []struct {
		in   Intake
		body string
	}{
		{NewProfitEngineIntake(), `{"engine":"profit-engine","job":{"priority":""}}`},
		{NewZalaraIntake(), `{"engine":"zalara","job":{"template":"t","priority":""}}`},
		{NewSignalForgeIntake(), `{"engine":"signal-forge","job":{"source":"s","priority":""}}`},
	} {
		job, _, err := tc.in.Parse([]byte(tc.body))
		require.NoError(t, err, tc.body)
		assert.Equal(t, PriorityNormal, job.Priority, tc.body)
	}
}

func TestUnknownPriorityRejected(t *testing.T) {
	for _, tc := range []struct {
		in   Intake
		body string
	}{
		{NewProfitEngineIntake(), `{"engine":"profit-engine","job":{"priority":"urgent"}}`},
		{NewZalaraIntake(), `{"engine":"zalara","job":{"template":"t","priority":"urgent"}}`},
		{NewSignalForgeIntake(), `{"engine":"signal-forge","job":{"source":"s","priority":"urgent"}}`},
	} {
		_, _, err := tc.in.Parse([]byte(tc.body))
		assert.Contains(t, intakeMessage(t, err), "Invalid job:", tc.body)
	}

	job, _, err := NewZalaraIntake().Parse([]byte(`{"engine":"zalara","job":{"template":"t","priority":"high"}}`))
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, job.Priority)
}

func TestZalaraIntake(t *testing.T) {
	in := NewZalaraIntake()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"not json", `nope`, "Invalid JSON body."},
		{"missing engine", `{"job":{"template":"promo"}}`, `Missing "engine" field`},
		{"empty engine", `{"engine":"","job":{"template":"promo"}}`, `Missing "engine" field`},
		{"missing job", `{"engine":"zalara"}`, `Missing "job.template" field`},
		{"missing template", `{"engine":"zalara","job":{"inputs":{}}}`, `Missing "job.template" field`},
		{"empty template", `{"engine":"zalara","job":{"template":""}}`, `Missing "job.template" field`},
		{"false template", `{"engine":"zalara","job":{"template":false}}`, `Missing "job.template" field`},
		{"bad callback", `{"engine":"zalara","job":{"template":"t","callback_url":"ftp://x"}}`, `Invalid "job.callback_url" field`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := in.Parse([]byte(tc.body))
			assert.Equal(t, tc.want, intakeMessage(t, err))
		})
	}

	_, _, err := in.Parse([]byte(`{"engine":"zalara","job":{"template":42}}`))
	assert.Contains(t, intakeMessage(t, err), "Invalid job:")
}

func TestZalaraIntakeEchoesSubmittedJob(t *testing.T) {
	in := NewZalaraIntake()
	body := `{"engine":"zalara-beta","job":{"template":"book-promo","inputs":{"title":"Edge"},"callback_url":"https://hooks.example/z","custom":true}}`

	job, echo, err := in.Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "zalara-beta", echo)
	assert.Equal(t, "zalara", job.Engine)
	assert.Equal(t, "book-promo", job.Template)
	assert.Equal(t, "https://hooks.example/z", job.CallbackURL)
	assert.Equal(t, http.StatusCreated, in.AcceptedStatus())

	out, err := json.Marshal(in.View(job))
	require.NoError(t, err)
	assert.JSONEq(t, `{"template":"book-promo","inputs":{"title":"Edge"},"callback_url":"https://hooks.example/z","custom":true}`, string(out))
}

func TestSignalForgeIntake(t *testing.T) {
	in := NewSignalForgeIntake()

	_, _, err := in.Parse([]byte(`{"engine":"signal-forge","job":{"query":"x"}}`))
	assert.Equal(t, `Missing "job.source" field`, intakeMessage(t, err))

	_, _, err = in.Parse([]byte(`{"engine":"profit-engine","job":{"source":"nfl"}}`))
	assert.Equal(t, `Invalid engine. Expected "signal-forge".`, intakeMessage(t, err))

	job, echo, err := in.Parse([]byte(`{"engine":"signal-forge","job":{"source":"nfl-lines","query":"steam moves","tags":["lines"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "signal-forge", echo)
	assert.Equal(t, "nfl-lines", job.Source)
	assert.Equal(t, "steam moves", job.Query)

	out, err := json.Marshal(in.View(job))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"nfl-lines","query":"steam moves","priority":"normal","tags":["lines"]}`, string(out))
}

func TestDefaultIntakesCoverJobEngines(t *testing.T) {
	var ids []string
	for _, in := range DefaultIntakes() {
		ids = append(ids, in.Engine())
		assert.NotEmpty(t, in.Usage())
		assert.NotEmpty(t, in.Note())
	}
	assert.Equal(t, []string{"profit-engine", "zalara", "signal-forge"}, ids)
}
