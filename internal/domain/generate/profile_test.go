package generate

import "testing"

func TestProfileFor_StructuredTriggers(t *testing.T) {
	t.Parallel()

	prompts := []string{
		"show patients with similar symptoms",
		"list all medications for this patient",
		"Put the results in a TABLE",
		"find records matching hypertension",
		"compare treatment outcomes across visits",
		"any patterns in the lab values?",
	}
	for _, prompt := range prompts {
		p := ProfileFor(prompt, "")
		if !p.RequiresStructuredOutput {
			t.Errorf("%q: expected structured output", prompt)
			continue
		}
		if p.Temperature != 0.3 || p.MaxTokens != 3000 {
			t.Errorf("%q: expected (0.3, 3000), got (%v, %d)", prompt, p.Temperature, p.MaxTokens)
		}
	}
}

func TestProfileFor_FreeformDefault(t *testing.T) {
	t.Parallel()

	p := ProfileFor("what does this diagnosis mean?", "")
	if p.RequiresStructuredOutput {
		t.Error("expected freeform profile")
	}
	if p.Temperature != 0.7 || p.MaxTokens != 2000 {
		t.Errorf("expected (0.7, 2000), got (%v, %d)", p.Temperature, p.MaxTokens)
	}
}

func TestProfileFor_SystemMessageAlsoTriggers(t *testing.T) {
	t.Parallel()

	p := ProfileFor("tell me about this patient", "Always answer in a table.")
	if !p.RequiresStructuredOutput {
		t.Error("expected the system message to trigger structured output")
	}
}

func TestProfileFor_Pure(t *testing.T) {
	t.Parallel()

	const prompt = "show patients with similar symptoms"
	if ProfileFor(prompt, "") != ProfileFor(prompt, "") {
		t.Error("identical input must yield identical profiles")
	}
}
