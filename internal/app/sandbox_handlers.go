package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fhir-relay/internal/fhir"
	"fhir-relay/internal/upstream"
)

// sandboxError maps an upstream failure to a passthrough response. The
// remote status and body are surfaced, never masked; notFound (when
// non-empty) replaces the body on a remote 404.
func (a *Application) sandboxError(w http.ResponseWriter, action string, err error, notFound string) {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		if ue.StatusCode == http.StatusNotFound && notFound != "" {
			a.writeError(w, http.StatusNotFound, notFound, "")
			return
		}
		a.writeJSON(w, ue.StatusCode, map[string]any{
			"error":  action + " failed",
			"status": ue.StatusCode,
			"detail": ue.Body,
		})
		return
	}
	a.Logger.Printf("%s: %v", action, err)
	a.writeError(w, http.StatusInternalServerError, action+" failed", err.Error())
}

// handleSandboxPatients searches demo patients with the query filters.
func (a *Application) handleSandboxPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	count, _ := strconv.Atoi(q.Get("_count"))
	params := fhir.PatientSearchParams{
		Family:    q.Get("family"),
		Given:     q.Get("given"),
		Name:      q.Get("name"),
		Gender:    strings.ToLower(q.Get("gender")),
		BirthDate: q.Get("birthdate"),
		Count:     count,
	}

	result, err := a.Sandbox.SearchPatients(r.Context(), params)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && strings.Contains(ue.Body, "at least one of") {
			a.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":                "Search parameters required",
				"message":              "The sandbox requires at least one search parameter",
				"available_parameters": []string{"family", "given", "name", "gender", "birthdate"},
				"examples": []string{
					"?family=Smith", "?given=John", "?name=John", "?gender=male", "?birthdate=1990-01-01",
				},
				"upstream_error": ue.Body,
			})
			return
		}
		a.sandboxError(w, "sandbox patient search", err, "")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":        "Open Sandbox - Patient Search",
		"description": "Searched demo patients with filters",
		"search_parameters": map[string]any{
			"family":    params.Family,
			"given":     params.Given,
			"name":      params.Name,
			"gender":    params.Gender,
			"birthdate": params.BirthDate,
			"count":     params.Count,
		},
		"total_found":       result.Total,
		"patients_summary":  result.Patients,
		"raw_fhir_response": result.Raw,
		"endpoint_used":     result.URL,
		"tenant_id":         a.Config.TenantID,
	})
}

// handleSandboxPatient fetches one demo patient's details.
func (a *Application) handleSandboxPatient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	detail, err := a.Sandbox.Patient(r.Context(), id)
	if err != nil {
		a.sandboxError(w, "sandbox patient lookup", err,
			fmt.Sprintf("Demo patient %s not found in sandbox", id))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":          "Open Sandbox",
		"patient_id":    id,
		"data_type":     "Demo Patient Details",
		"patient_data":  detail.Raw,
		"endpoint_used": detail.URL,
	})
}

// handleSandboxPatientCoverage looks up insurance coverage for a patient.
func (a *Application) handleSandboxPatientCoverage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := a.Sandbox.PatientCoverage(r.Context(), id)
	if err != nil {
		a.sandboxError(w, "coverage lookup", err,
			fmt.Sprintf("No coverage found for patient %s", id))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":                 "Open Sandbox - Patient Coverage",
		"patient_id":           id,
		"data_type":            "Patient Insurance/Coverage Information",
		"total_coverage_plans": result.Total,
		"coverage_summaries":   result.Coverages,
		"raw_coverage_data":    result.Raw,
		"endpoint_used":        result.URL,
		"tenant_id":            a.Config.TenantID,
	})
}

// handleSandboxPatientComplete merges demographics with coverage.
func (a *Application) handleSandboxPatientComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := a.Sandbox.CompleteProfile(r.Context(), id)
	if err != nil {
		a.sandboxError(w, "patient profile lookup", err,
			fmt.Sprintf("Patient %s not found in sandbox", id))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":               "Open Sandbox - Complete Patient Profile",
		"patient_id":         id,
		"data_type":          "Complete Patient Demographics + Insurance",
		"patient_summary":    profile.Patient,
		"insurance_coverage": profile.Coverage,
		"has_insurance_data": len(profile.Coverage) > 0,
		"raw_patient_data":   profile.RawPatient,
		"endpoints_used":     profile.URLs,
		"tenant_id":          a.Config.TenantID,
	})
}

// handleSandboxObservations fetches demo observations.
func (a *Application) handleSandboxObservations(w http.ResponseWriter, r *http.Request) {
	result, err := a.Sandbox.Observations(r.Context())
	if err != nil {
		a.sandboxError(w, "sandbox observations", err, "")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":                 "Open Sandbox - Observations",
		"data_type":            "Demo Vitals/Observations",
		"total":                result.Total,
		"observations_summary": result.Observations,
		"raw_fhir_response":    result.Raw,
		"endpoint_used":        result.URL,
	})
}

// handleSandboxMedications fetches demo medication requests.
func (a *Application) handleSandboxMedications(w http.ResponseWriter, r *http.Request) {
	result, err := a.Sandbox.Medications(r.Context())
	if err != nil {
		a.sandboxError(w, "sandbox medications", err, "")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":                "Open Sandbox - Medications",
		"data_type":           "Demo Medications/Prescriptions",
		"total":               result.Total,
		"medications_summary": result.Medications,
		"raw_fhir_response":   result.Raw,
		"endpoint_used":       result.URL,
	})
}

// handleSandboxMedicationRequest fetches one medication request.
func (a *Application) handleSandboxMedicationRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	detail, err := a.Sandbox.MedicationRequest(r.Context(), id)
	if err != nil {
		a.sandboxError(w, "medication request lookup", err,
			fmt.Sprintf("Medication request %s not found in sandbox", id))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":                  "Open Sandbox - Medication Request Details",
		"medication_request_id": id,
		"data_type":             "Demo Medication Request Details",
		"medication_summary":    detail.Summary,
		"raw_medication_data":   detail.Raw,
		"endpoint_used":         detail.URL,
		"tenant_id":             a.Config.TenantID,
	})
}

// handleSandboxInsurancePlans searches insurance plans by owning
// organization.
func (a *Application) handleSandboxInsurancePlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	count, _ := strconv.Atoi(q.Get("_count"))
	result, err := a.Sandbox.InsurancePlans(r.Context(), q.Get("owned_by"), count)
	if err != nil {
		a.sandboxError(w, "insurance plan search", err, "")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":      "Open Sandbox - Insurance Plans",
		"data_type": "Demo Insurance Plans",
		"search_parameters": map[string]any{
			"owned_by": result.OwnedBy,
			"count":    count,
		},
		"total_found":       result.Total,
		"plans_summary":     result.Plans,
		"raw_fhir_response": result.Raw,
		"endpoint_used":     result.URL,
		"tenant_id":         a.Config.TenantID,
	})
}

// handleSandboxInsurancePlan fetches one insurance plan.
func (a *Application) handleSandboxInsurancePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	detail, err := a.Sandbox.InsurancePlan(r.Context(), id)
	if err != nil {
		a.sandboxError(w, "insurance plan lookup", err,
			fmt.Sprintf("Insurance plan %s not found in sandbox", id))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":          "Open Sandbox - Insurance Plan Details",
		"plan_id":       id,
		"data_type":     "Demo Insurance Plan Details",
		"plan_data":     detail.Raw,
		"endpoint_used": detail.URL,
		"tenant_id":     a.Config.TenantID,
	})
}

// handleSandboxKnownPatients probes the well-known demo patient IDs.
func (a *Application) handleSandboxKnownPatients(w http.ResponseWriter, r *http.Request) {
	results := a.Sandbox.ProbeKnownPatients(r.Context())
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":         "Open Sandbox - Testing Known Patients",
		"data_type":    "Demo Patient ID Tests",
		"base_url":     a.Config.SandboxBaseURL(),
		"tenant_id":    a.Config.TenantID,
		"test_results": results,
		"note":         "These are common demo patient IDs in the open sandbox",
	})
}

// handleSandboxSearchExamples suggests searches known to return demo data.
func (a *Application) handleSandboxSearchExamples(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"mode":        "Open Sandbox - Search Suggestions",
		"description": "Common searches that typically return demo data",
		"search_examples": map[string]map[string]string{
			"by_gender": {
				"male":   "/sandbox/patients?gender=male",
				"female": "/sandbox/patients?gender=female",
			},
			"by_family_name": {
				"Smart":  "/sandbox/patients?family=Smart",
				"Peters": "/sandbox/patients?family=Peters",
				"Bond":   "/sandbox/patients?family=Bond",
				"Shaw":   "/sandbox/patients?family=Shaw",
			},
			"by_given_name": {
				"Nancy": "/sandbox/patients?given=Nancy",
				"Timmy": "/sandbox/patients?given=Timmy",
				"Aaron": "/sandbox/patients?given=Aaron",
			},
			"by_any_name": {
				"Smart": "/sandbox/patients?name=Smart",
				"Nancy": "/sandbox/patients?name=Nancy",
			},
		},
		"notes": []string{
			"The sandbox requires at least one search parameter",
			"Try common demo names like Smart, Peters, Nancy, Timmy",
			"Gender options: male, female, other, unknown",
			"Use _count to limit results (default 20)",
		},
	})
}
