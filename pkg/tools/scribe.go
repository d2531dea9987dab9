package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/daisy/pkg/toolmanager"
)

type soapField struct {
	name        string
	description string
}

// soapFields is the Pediatric SOAP Note form, in document order.
var soapFields = []soapField{
	{"title", "Title of the document."},
	{"patientName", "Name of the patient."},
	{"assignedMedicalPractitioner", "Assigned medical practitioner."},
	{"conductedOn", "Date when the assessment was conducted."},
	{"location", "Location where the assessment was conducted."},
	{"age", "Patient's age."},
	{"race", "Patient's race."},
	{"gender", "Patient's gender."},
	{"chiefComplaint", "Main reason for the patient's visit."},
	{"historyOfIllness", "Details about how the patient got sick."},
	{"pastMedicalHistory", "The patient's past medical history, including allergies."},
	{"familyHistory", "Any relevant family medical history."},
	{"socialHistory", "Patient's social background and context."},
	{"reviewOfSystems", "Findings about patient's systems, like pain, and eating habits."},
	{"height", "Patient's height."},
	{"weight", "Patient's weight."},
	{"bmi", "Patient's Body Mass Index."},
	{"temperature", "Patient's temperature."},
	{"bloodPressure", "Patient's blood pressure."},
	{"generalAppearance", "How the patient looks generally."},
	{"eent", "Examination results for Ears, Eyes, Nose, and Throat."},
	{"cardiovascular", "Results of patient's cardiovascular examination."},
	{"respiratory", "Results of patient's respiratory examination."},
	{"integument", "Results of patient's skin examination."},
	{"labResults", "Results of patient's lab results."},
	{"generalObservations", "Additional medical observations."},
	{"differentialDiagnosis", "Possible differential diagnosis."},
	{"treatmentPlan", "Patient's treatment plan."},
	{"followUp", "Patient's follow up plan."},
	{"education", "Patient's education plan."},
	{"printedName", "Medical practitioner's printed name."},
	{"date", "Date when document was generated."},
}

var soapRequired = map[string]bool{"patientName": true, "age": true, "chiefComplaint": true}

// soapSchema builds the parameter schema shared by the scribe and the
// document tools.
func soapSchema() *toolmanager.Schema {
	params := make([]toolmanager.Parameter, 0, len(soapFields))
	for _, f := range soapFields {
		params = append(params, toolmanager.Parameter{
			Name:        f.name,
			Type:        "string",
			Description: f.description,
			Required:    soapRequired[f.name],
		})
	}
	return toolmanager.Object(params...)
}

// ScribeGenerator fills in a SOAP note from the model's arguments.
type ScribeGenerator struct{}

func NewScribeGenerator() *ScribeGenerator {
	return &ScribeGenerator{}
}

func (s *ScribeGenerator) Declarations() []toolmanager.Declaration {
	return []toolmanager.Declaration{{
		Name:        "scribeGenerator",
		Description: "This tool will generate a medical scribe based on the user input, using the Pediatric SOAP Note form.",
		Parameters:  soapSchema(),
	}}
}

func (s *ScribeGenerator) Execute(ctx context.Context, args map[string]any) (any, error) {
	note, err := normalizeSOAP(args)
	if err != nil {
		return nil, err
	}
	out, err := marshalSOAP(note)
	if err != nil {
		return nil, toolmanager.ExecutionError("failed to encode scribe: %v", err)
	}
	return string(out), nil
}

// normalizeSOAP returns every form field as a string, "" when absent.
// Keys outside the form are dropped.
func normalizeSOAP(args map[string]any) (map[string]string, error) {
	note := make(map[string]string, len(soapFields))
	for _, f := range soapFields {
		switch v := args[f.name].(type) {
		case nil:
			note[f.name] = ""
		case string:
			note[f.name] = v
		case float64, int, bool:
			note[f.name] = fmt.Sprint(v)
		default:
			return nil, toolmanager.ExecutionError("argument %s must be a string", f.name)
		}
	}
	return note, nil
}

// marshalSOAP encodes the note with keys in form order.
func marshalSOAP(note map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range soapFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(note[f.name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
