package workflow

import "testing"

const sampleInstructions = `
<step n="1" goal="Gather requirements">
  <action>summarize onboarding docs</action>
  <check if="needs_review">
    <action>flag for review</action>
  </check>
</step>
<step n="2" goal="Ask user" optional="true">
  <ask>What is the project name?</ask>
  <elicit-required>Confirm the scope</elicit-required>
</step>
<step n="3" goal="Write output" if="ready == 'true'">
  <template-output file="output.md">{{project_name}} summary</template-output>
  <output>Step 3 complete</output>
</step>
`

func TestParseInstructionsBasicShape(t *testing.T) {
	steps, err := ParseInstructions(sampleInstructions)
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}

	if steps[0].N != 1 || steps[0].Goal != "Gather requirements" {
		t.Fatalf("unexpected step 1: %+v", steps[0])
	}
	if len(steps[0].Body) != 2 {
		t.Fatalf("expected 2 body nodes in step 1, got %d", len(steps[0].Body))
	}
	if steps[0].Body[0].Kind != NodeAction || steps[0].Body[0].Text != "summarize onboarding docs" {
		t.Fatalf("unexpected action node: %+v", steps[0].Body[0])
	}
	if steps[0].Body[1].Kind != NodeCheck || steps[0].Body[1].If != "needs_review" {
		t.Fatalf("unexpected check node: %+v", steps[0].Body[1])
	}
	if len(steps[0].Body[1].Children) != 1 || steps[0].Body[1].Children[0].Text != "flag for review" {
		t.Fatalf("unexpected check children: %+v", steps[0].Body[1].Children)
	}

	if !steps[1].Optional {
		t.Fatal("expected step 2 to be optional")
	}
	if steps[1].Body[0].Kind != NodeAsk || steps[1].Body[1].Kind != NodeElicitRequired {
		t.Fatalf("unexpected step 2 body: %+v", steps[1].Body)
	}

	if steps[2].If != "ready == 'true'" {
		t.Fatalf("unexpected step 3 guard: %q", steps[2].If)
	}
	if steps[2].Body[0].Kind != NodeTemplateOutput || steps[2].Body[0].File != "output.md" {
		t.Fatalf("unexpected template-output node: %+v", steps[2].Body[0])
	}
	if steps[2].Body[1].Kind != NodeOutput || steps[2].Body[1].Text != "Step 3 complete" {
		t.Fatalf("unexpected output node: %+v", steps[2].Body[1])
	}
}

func TestParseInstructionsUnknownElementIgnored(t *testing.T) {
	src := `<step n="1" goal="g"><action>do it</action><widget>ignored</widget></step>`
	steps, err := ParseInstructions(src)
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	if len(steps) != 1 || len(steps[0].Body) != 1 {
		t.Fatalf("expected the unknown element to be ignored, got %+v", steps)
	}
}

func TestParseInstructionsRejectsNonMonotonicSteps(t *testing.T) {
	src := `<step n="1" goal="g"><action>a</action></step><step n="3" goal="g"><action>b</action></step>`
	if _, err := ParseInstructions(src); err == nil {
		t.Fatal("expected an error for a gap in step numbering")
	}
}

func TestParseInstructionsRejectsDuplicateStepNumbers(t *testing.T) {
	src := `<step n="1" goal="g"><action>a</action></step><step n="1" goal="g"><action>b</action></step>`
	if _, err := ParseInstructions(src); err == nil {
		t.Fatal("expected an error for a duplicate step number")
	}
}

func TestParseInstructionsUnterminatedStepErrors(t *testing.T) {
	src := `<step n="1" goal="g"><action>a</action>`
	if _, err := ParseInstructions(src); err == nil {
		t.Fatal("expected an error for an unterminated step")
	}
}
