package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"fhir-relay/internal/metrics"
	"fhir-relay/internal/upstream"
)

// KnownPatientIDs are demo patient IDs commonly present in the open
// sandbox data set.
var KnownPatientIDs = []string{
	"12724066", "12724067", "12724068", "4342012", "4342009", "4342008",
}

// DefaultOwningOrganization is the organization whose insurance plans are
// searched when the caller does not name one.
const DefaultOwningOrganization = "Organization/589783"

const sandboxUserAgent = "Oracle-Health-Demo-Client"

// SandboxClient reads the open, unauthenticated sandbox data set. Every
// method fetches one (or two) remote resources and reshapes the response;
// no write operations exist.
type SandboxClient struct {
	http    *http.Client
	baseURL string
	logger  *log.Logger
}

// NewSandboxClient creates a SandboxClient for the given sandbox base URL.
func NewSandboxClient(httpClient *http.Client, baseURL string, logger *log.Logger) *SandboxClient {
	return &SandboxClient{
		http:    httpClient,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (s *SandboxClient) get(ctx context.Context, reqURL, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building sandbox request: %w", err)
	}
	req.Header.Set("Accept", acceptFHIRJSON)
	req.Header.Set("User-Agent", sandboxUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling sandbox: %w", err)
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return upstream.ReadBody(resp)
}

//
// Patients
//

// PatientSearchParams are the supported sandbox patient search filters.
// The sandbox requires at least one; SearchPatients falls back to a
// default family-name search when none is set.
type PatientSearchParams struct {
	Family    string
	Given     string
	Name      string
	Gender    string
	BirthDate string
	Count     int
}

func (p PatientSearchParams) hasFilter() bool {
	return p.Family != "" || p.Given != "" || p.Name != "" || p.Gender != "" || p.BirthDate != ""
}

// Address is a flattened patient address.
type Address struct {
	Use           string `json:"use"`
	FormattedText string `json:"formatted_text"`
}

// Contact is a flattened telecom entry.
type Contact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Use   string `json:"use"`
}

// PatientSummary is the reshaped view of one Patient resource in a
// searchset. Raw sub-objects are passed through untouched.
type PatientSummary struct {
	ID                 string          `json:"id"`
	Active             *bool           `json:"active"`
	Gender             string          `json:"gender"`
	BirthDate          string          `json:"birthDate"`
	BirthYear          int             `json:"birth_year,omitempty"`
	CalculatedAge      int             `json:"calculated_age,omitempty"`
	FormattedNames     []string        `json:"formatted_names"`
	FormattedAddresses []Address       `json:"formatted_addresses"`
	FormattedContacts  []Contact       `json:"formatted_contacts"`
	RawNames           json.RawMessage `json:"raw_names"`
	RawTelecom         json.RawMessage `json:"raw_telecom"`
	RawAddress         json.RawMessage `json:"raw_address"`
	MaritalStatus      json.RawMessage `json:"maritalStatus"`
}

// PatientSearchResult is a reshaped patient searchset.
type PatientSearchResult struct {
	Total    int64
	Patients []PatientSummary
	URL      string
	Raw      json.RawMessage
}

// SearchPatients searches sandbox patients with the given filters.
func (s *SandboxClient) SearchPatients(ctx context.Context, p PatientSearchParams) (*PatientSearchResult, error) {
	if p.Count <= 0 {
		p.Count = 20
	}

	q := url.Values{}
	if p.Family != "" {
		q.Set("family", p.Family)
	}
	if p.Given != "" {
		q.Set("given", p.Given)
	}
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	if p.Gender != "" {
		q.Set("gender", p.Gender)
	}
	if p.BirthDate != "" {
		q.Set("birthdate", p.BirthDate)
	}
	if !p.hasFilter() {
		// The sandbox rejects unfiltered searches; Smart is a family
		// known to return demo data.
		q.Set("family", "Smart")
	}
	q.Set("_count", strconv.Itoa(p.Count))

	reqURL := s.baseURL + "/Patient?" + q.Encode()
	body, err := s.get(ctx, reqURL, "sandbox_patient_search")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	result := &PatientSearchResult{
		Total: parsed.Get("total").Int(),
		URL:   reqURL,
		Raw:   json.RawMessage(body),
	}
	for _, entry := range parsed.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "Patient" {
			continue
		}
		result.Patients = append(result.Patients, summarizePatient(res))
	}
	return result, nil
}

// ResourceDetail is a single resource passed through with its source URL.
type ResourceDetail struct {
	URL string
	Raw json.RawMessage
}

// Patient fetches a single sandbox patient by ID.
func (s *SandboxClient) Patient(ctx context.Context, id string) (*ResourceDetail, error) {
	reqURL := s.baseURL + "/Patient/" + url.PathEscape(id)
	body, err := s.get(ctx, reqURL, "sandbox_patient")
	if err != nil {
		return nil, err
	}
	return &ResourceDetail{URL: reqURL, Raw: json.RawMessage(body)}, nil
}

//
// Observations
//

// ObservationSummary is the reshaped view of one Observation resource.
type ObservationSummary struct {
	ID                   string          `json:"id"`
	Status               string          `json:"status"`
	Category             json.RawMessage `json:"category"`
	Code                 json.RawMessage `json:"code"`
	Subject              json.RawMessage `json:"subject"`
	EffectiveDateTime    string          `json:"effectiveDateTime"`
	ValueQuantity        json.RawMessage `json:"valueQuantity"`
	ValueString          string          `json:"valueString"`
	ValueCodeableConcept json.RawMessage `json:"valueCodeableConcept"`
}

// ObservationsResult is a reshaped observation searchset.
type ObservationsResult struct {
	Total        int64
	Observations []ObservationSummary
	URL          string
	Raw          json.RawMessage
}

// Observations fetches recent sandbox observations.
func (s *SandboxClient) Observations(ctx context.Context) (*ObservationsResult, error) {
	reqURL := s.baseURL + "/Observation?_count=20"
	body, err := s.get(ctx, reqURL, "sandbox_observations")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	result := &ObservationsResult{
		Total: parsed.Get("total").Int(),
		URL:   reqURL,
		Raw:   json.RawMessage(body),
	}
	for _, entry := range parsed.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "Observation" {
			continue
		}
		result.Observations = append(result.Observations, ObservationSummary{
			ID:                   res.Get("id").String(),
			Status:               res.Get("status").String(),
			Category:             rawOr(res.Get("category"), "[]"),
			Code:                 rawOr(res.Get("code"), "{}"),
			Subject:              rawOr(res.Get("subject"), "{}"),
			EffectiveDateTime:    res.Get("effectiveDateTime").String(),
			ValueQuantity:        rawOr(res.Get("valueQuantity"), "{}"),
			ValueString:          res.Get("valueString").String(),
			ValueCodeableConcept: rawOr(res.Get("valueCodeableConcept"), "{}"),
		})
	}
	return result, nil
}

//
// Medications
//

// MedicationSummary is the reshaped view of one MedicationRequest in a
// searchset.
type MedicationSummary struct {
	ID                        string          `json:"id"`
	Status                    string          `json:"status"`
	MedicationCodeableConcept json.RawMessage `json:"medicationCodeableConcept"`
	Subject                   json.RawMessage `json:"subject"`
	AuthoredOn                string          `json:"authoredOn"`
	DosageInstruction         json.RawMessage `json:"dosageInstruction"`
}

// MedicationsResult is a reshaped MedicationRequest searchset.
type MedicationsResult struct {
	Total       int64
	Medications []MedicationSummary
	URL         string
	Raw         json.RawMessage
}

// Medications fetches recent sandbox medication requests.
func (s *SandboxClient) Medications(ctx context.Context) (*MedicationsResult, error) {
	reqURL := s.baseURL + "/MedicationRequest?_count=15"
	body, err := s.get(ctx, reqURL, "sandbox_medications")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	result := &MedicationsResult{
		Total: parsed.Get("total").Int(),
		URL:   reqURL,
		Raw:   json.RawMessage(body),
	}
	for _, entry := range parsed.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "MedicationRequest" {
			continue
		}
		result.Medications = append(result.Medications, MedicationSummary{
			ID:                        res.Get("id").String(),
			Status:                    res.Get("status").String(),
			MedicationCodeableConcept: rawOr(res.Get("medicationCodeableConcept"), "{}"),
			Subject:                   rawOr(res.Get("subject"), "{}"),
			AuthoredOn:                res.Get("authoredOn").String(),
			DosageInstruction:         rawOr(res.Get("dosageInstruction"), "[]"),
		})
	}
	return result, nil
}

// MedicationRequestSummary is the reshaped view of a single
// MedicationRequest resource.
type MedicationRequestSummary struct {
	ID                        string          `json:"id"`
	Status                    string          `json:"status"`
	Intent                    string          `json:"intent"`
	MedicationCodeableConcept json.RawMessage `json:"medicationCodeableConcept"`
	Subject                   json.RawMessage `json:"subject"`
	Encounter                 json.RawMessage `json:"encounter"`
	AuthoredOn                string          `json:"authoredOn"`
	Requester                 json.RawMessage `json:"requester"`
	DosageInstruction         json.RawMessage `json:"dosageInstruction"`
	DispenseRequest           json.RawMessage `json:"dispenseRequest"`
	Substitution              json.RawMessage `json:"substitution"`
}

// MedicationRequestDetail pairs a summary with the raw resource.
type MedicationRequestDetail struct {
	Summary MedicationRequestSummary
	URL     string
	Raw     json.RawMessage
}

// MedicationRequest fetches a single sandbox MedicationRequest by ID.
func (s *SandboxClient) MedicationRequest(ctx context.Context, id string) (*MedicationRequestDetail, error) {
	reqURL := s.baseURL + "/MedicationRequest/" + url.PathEscape(id)
	body, err := s.get(ctx, reqURL, "sandbox_medication_request")
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	return &MedicationRequestDetail{
		Summary: MedicationRequestSummary{
			ID:                        res.Get("id").String(),
			Status:                    res.Get("status").String(),
			Intent:                    res.Get("intent").String(),
			MedicationCodeableConcept: rawOr(res.Get("medicationCodeableConcept"), "{}"),
			Subject:                   rawOr(res.Get("subject"), "{}"),
			Encounter:                 rawOr(res.Get("encounter"), "{}"),
			AuthoredOn:                res.Get("authoredOn").String(),
			Requester:                 rawOr(res.Get("requester"), "{}"),
			DosageInstruction:         rawOr(res.Get("dosageInstruction"), "[]"),
			DispenseRequest:           rawOr(res.Get("dispenseRequest"), "{}"),
			Substitution:              rawOr(res.Get("substitution"), "{}"),
		},
		URL: reqURL,
		Raw: json.RawMessage(body),
	}, nil
}

//
// Coverage and insurance plans
//

// CoverageSummary is the reshaped view of one Coverage resource.
type CoverageSummary struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Type         json.RawMessage `json:"type"`
	Beneficiary  json.RawMessage `json:"beneficiary"`
	Payor        json.RawMessage `json:"payor"`
	Period       json.RawMessage `json:"period"`
	SubscriberID string          `json:"subscriberId"`
	Relationship json.RawMessage `json:"relationship"`
	Network      json.RawMessage `json:"network"`
	Order        json.RawMessage `json:"order"`
}

// CoverageResult is a reshaped Coverage searchset for one patient.
type CoverageResult struct {
	Total     int64
	Coverages []CoverageSummary
	URL       string
	Raw       json.RawMessage
}

// PatientCoverage searches Coverage resources for the given patient.
func (s *SandboxClient) PatientCoverage(ctx context.Context, patientID string) (*CoverageResult, error) {
	reqURL := s.baseURL + "/Coverage?patient=Patient/" + url.QueryEscape(patientID)
	body, err := s.get(ctx, reqURL, "sandbox_coverage")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	result := &CoverageResult{
		Total: parsed.Get("total").Int(),
		URL:   reqURL,
		Raw:   json.RawMessage(body),
	}
	for _, entry := range parsed.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "Coverage" {
			continue
		}
		result.Coverages = append(result.Coverages, CoverageSummary{
			ID:           res.Get("id").String(),
			Status:       res.Get("status").String(),
			Type:         rawOr(res.Get("type"), "{}"),
			Beneficiary:  rawOr(res.Get("beneficiary"), "{}"),
			Payor:        rawOr(res.Get("payor"), "[]"),
			Period:       rawOr(res.Get("period"), "{}"),
			SubscriberID: res.Get("subscriberId").String(),
			Relationship: rawOr(res.Get("relationship"), "{}"),
			Network:      rawOr(res.Get("network"), "null"),
			Order:        rawOr(res.Get("order"), "null"),
		})
	}
	return result, nil
}

// InsurancePlanSummary is the reshaped view of one InsurancePlan resource.
type InsurancePlanSummary struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Type           json.RawMessage `json:"type"`
	Name           string          `json:"name"`
	Alias          json.RawMessage `json:"alias"`
	OwnedBy        json.RawMessage `json:"ownedBy"`
	AdministeredBy json.RawMessage `json:"administeredBy"`
	CoverageArea   json.RawMessage `json:"coverageArea"`
	Contact        json.RawMessage `json:"contact"`
	Endpoint       json.RawMessage `json:"endpoint"`
}

// InsurancePlansResult is a reshaped InsurancePlan searchset.
type InsurancePlansResult struct {
	Total   int64
	Plans   []InsurancePlanSummary
	OwnedBy string
	URL     string
	Raw     json.RawMessage
}

// InsurancePlans searches sandbox insurance plans owned by the given
// organization (default when empty).
func (s *SandboxClient) InsurancePlans(ctx context.Context, ownedBy string, count int) (*InsurancePlansResult, error) {
	if ownedBy == "" {
		ownedBy = DefaultOwningOrganization
	}
	if count <= 0 {
		count = 20
	}

	q := url.Values{}
	q.Set("owned-by", ownedBy)
	q.Set("_count", strconv.Itoa(count))
	reqURL := s.baseURL + "/InsurancePlan?" + q.Encode()

	body, err := s.get(ctx, reqURL, "sandbox_insurance_plans")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	result := &InsurancePlansResult{
		Total:   parsed.Get("total").Int(),
		OwnedBy: ownedBy,
		URL:     reqURL,
		Raw:     json.RawMessage(body),
	}
	for _, entry := range parsed.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "InsurancePlan" {
			continue
		}
		result.Plans = append(result.Plans, InsurancePlanSummary{
			ID:             res.Get("id").String(),
			Status:         res.Get("status").String(),
			Type:           rawOr(res.Get("type"), "[]"),
			Name:           res.Get("name").String(),
			Alias:          rawOr(res.Get("alias"), "[]"),
			OwnedBy:        rawOr(res.Get("ownedBy"), "{}"),
			AdministeredBy: rawOr(res.Get("administeredBy"), "{}"),
			CoverageArea:   rawOr(res.Get("coverageArea"), "[]"),
			Contact:        rawOr(res.Get("contact"), "[]"),
			Endpoint:       rawOr(res.Get("endpoint"), "[]"),
		})
	}
	return result, nil
}

// InsurancePlan fetches a single sandbox insurance plan by ID.
func (s *SandboxClient) InsurancePlan(ctx context.Context, id string) (*ResourceDetail, error) {
	reqURL := s.baseURL + "/InsurancePlan/" + url.PathEscape(id)
	body, err := s.get(ctx, reqURL, "sandbox_insurance_plan")
	if err != nil {
		return nil, err
	}
	return &ResourceDetail{URL: reqURL, Raw: json.RawMessage(body)}, nil
}

//
// Complete profile and known-patient probe
//

// CompleteAddress is the richer address flattening used by the complete
// patient profile.
type CompleteAddress struct {
	Use           string          `json:"use"`
	Type          string          `json:"type"`
	FormattedText string          `json:"formatted_text"`
	Period        json.RawMessage `json:"period"`
}

// CompleteContact is the richer telecom flattening used by the complete
// patient profile.
type CompleteContact struct {
	System string          `json:"system"`
	Value  string          `json:"value"`
	Use    string          `json:"use"`
	Rank   json.RawMessage `json:"rank"`
}

// CompletePatientSummary is the demographics half of a complete profile.
type CompletePatientSummary struct {
	ID                  string            `json:"id"`
	Active              *bool             `json:"active"`
	Gender              string            `json:"gender"`
	BirthDate           string            `json:"birthDate"`
	CalculatedAge       int               `json:"calculated_age,omitempty"`
	MaritalStatus       json.RawMessage   `json:"maritalStatus"`
	Communication       json.RawMessage   `json:"communication"`
	GeneralPractitioner json.RawMessage   `json:"generalPractitioner"`
	FormattedNames      []string          `json:"formatted_names"`
	FormattedAddresses  []CompleteAddress `json:"formatted_addresses"`
	FormattedContacts   []CompleteContact `json:"formatted_contacts"`
}

// CoverageBrief is the compact coverage view inside a complete profile.
type CoverageBrief struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Type         json.RawMessage `json:"type"`
	Payor        json.RawMessage `json:"payor"`
	SubscriberID string          `json:"subscriberId"`
	Relationship json.RawMessage `json:"relationship"`
	Period       json.RawMessage `json:"period"`
}

// CompleteProfileResult combines demographics with coverage.
type CompleteProfileResult struct {
	Patient    CompletePatientSummary
	Coverage   []CoverageBrief
	URLs       []string
	RawPatient json.RawMessage
}

// CompleteProfile fetches a patient's demographics and, best effort, their
// coverage. A coverage failure does not fail the profile: not every demo
// patient has coverage data.
func (s *SandboxClient) CompleteProfile(ctx context.Context, patientID string) (*CompleteProfileResult, error) {
	patientURL := s.baseURL + "/Patient/" + url.PathEscape(patientID)
	coverageURL := s.baseURL + "/Coverage?patient=Patient/" + url.QueryEscape(patientID)

	body, err := s.get(ctx, patientURL, "sandbox_patient")
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	_, age := birthYearAndAge(res.Get("birthDate").String())

	patient := CompletePatientSummary{
		ID:                  res.Get("id").String(),
		Active:              boolPtr(res.Get("active")),
		Gender:              res.Get("gender").String(),
		BirthDate:           res.Get("birthDate").String(),
		CalculatedAge:       age,
		MaritalStatus:       rawOr(res.Get("maritalStatus"), "{}"),
		Communication:       rawOr(res.Get("communication"), "[]"),
		GeneralPractitioner: rawOr(res.Get("generalPractitioner"), "[]"),
		FormattedNames:      formatNames(res.Get("name")),
	}
	for _, addr := range res.Get("address").Array() {
		patient.FormattedAddresses = append(patient.FormattedAddresses, CompleteAddress{
			Use:           addr.Get("use").String(),
			Type:          addr.Get("type").String(),
			FormattedText: formatAddressText(addr, true),
			Period:        rawOr(addr.Get("period"), "{}"),
		})
	}
	for _, tel := range res.Get("telecom").Array() {
		patient.FormattedContacts = append(patient.FormattedContacts, CompleteContact{
			System: tel.Get("system").String(),
			Value:  tel.Get("value").String(),
			Use:    tel.Get("use").String(),
			Rank:   rawOr(tel.Get("rank"), "null"),
		})
	}

	result := &CompleteProfileResult{
		Patient:    patient,
		URLs:       []string{patientURL, coverageURL},
		RawPatient: json.RawMessage(body),
	}

	covBody, err := s.get(ctx, coverageURL, "sandbox_coverage")
	if err != nil {
		s.logger.Printf("coverage lookup for patient %s skipped: %v", patientID, err)
		return result, nil
	}
	for _, entry := range gjson.ParseBytes(covBody).Get("entry").Array() {
		cov := entry.Get("resource")
		if cov.Get("resourceType").String() != "Coverage" {
			continue
		}
		result.Coverage = append(result.Coverage, CoverageBrief{
			ID:           cov.Get("id").String(),
			Status:       cov.Get("status").String(),
			Type:         rawOr(cov.Get("type"), "{}"),
			Payor:        rawOr(cov.Get("payor"), "[]"),
			SubscriberID: cov.Get("subscriberId").String(),
			Relationship: rawOr(cov.Get("relationship"), "{}"),
			Period:       rawOr(cov.Get("period"), "{}"),
		})
	}
	return result, nil
}

// KnownPatientProbe is the outcome of probing one well-known demo patient.
type KnownPatientProbe struct {
	Status     string          `json:"status"`
	HTTPStatus int             `json:"http_status,omitempty"`
	Name       json.RawMessage `json:"name,omitempty"`
	Gender     string          `json:"gender,omitempty"`
	BirthDate  string          `json:"birthDate,omitempty"`
	Active     *bool           `json:"active,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ProbeKnownPatients checks each well-known demo patient ID, using a short
// per-request budget so one slow lookup cannot stall the sweep.
func (s *SandboxClient) ProbeKnownPatients(ctx context.Context) map[string]KnownPatientProbe {
	results := make(map[string]KnownPatientProbe, len(KnownPatientIDs))
	for _, id := range KnownPatientIDs {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		body, err := s.get(probeCtx, s.baseURL+"/Patient/"+id, "sandbox_patient")
		cancel()

		if err != nil {
			if status := upstream.StatusOf(err); status != 0 {
				results[id] = KnownPatientProbe{Status: "not_found", HTTPStatus: status}
			} else {
				results[id] = KnownPatientProbe{Status: "error", Error: err.Error()}
			}
			continue
		}

		res := gjson.ParseBytes(body)
		results[id] = KnownPatientProbe{
			Status:    "found",
			Name:      rawOr(res.Get("name"), "[]"),
			Gender:    res.Get("gender").String(),
			BirthDate: res.Get("birthDate").String(),
			Active:    boolPtr(res.Get("active")),
		}
	}
	return results
}

//
// Reshaping helpers
//

func summarizePatient(res gjson.Result) PatientSummary {
	birthDate := res.Get("birthDate").String()
	birthYear, age := birthYearAndAge(birthDate)

	summary := PatientSummary{
		ID:             res.Get("id").String(),
		Active:         boolPtr(res.Get("active")),
		Gender:         res.Get("gender").String(),
		BirthDate:      birthDate,
		BirthYear:      birthYear,
		CalculatedAge:  age,
		FormattedNames: formatNames(res.Get("name")),
		RawNames:       rawOr(res.Get("name"), "[]"),
		RawTelecom:     rawOr(res.Get("telecom"), "[]"),
		RawAddress:     rawOr(res.Get("address"), "[]"),
		MaritalStatus:  rawOr(res.Get("maritalStatus"), "{}"),
	}
	for _, addr := range res.Get("address").Array() {
		use := addr.Get("use").String()
		if use == "" {
			use = "unknown"
		}
		text := formatAddressText(addr, false)
		if text == "" {
			text = "No address"
		}
		summary.FormattedAddresses = append(summary.FormattedAddresses, Address{
			Use:           use,
			FormattedText: text,
		})
	}
	for _, tel := range res.Get("telecom").Array() {
		system := tel.Get("system").String()
		if system == "" {
			system = "unknown"
		}
		use := tel.Get("use").String()
		if use == "" {
			use = "unknown"
		}
		summary.FormattedContacts = append(summary.FormattedContacts, Contact{
			Type:  system,
			Value: tel.Get("value").String(),
			Use:   use,
		})
	}
	return summary
}

// formatNames joins each HumanName's given parts and family into one
// display string.
func formatNames(names gjson.Result) []string {
	var formatted []string
	for _, name := range names.Array() {
		var parts []string
		for _, given := range name.Get("given").Array() {
			parts = append(parts, given.String())
		}
		if family := name.Get("family").String(); family != "" {
			parts = append(parts, family)
		}
		if len(parts) > 0 {
			formatted = append(formatted, strings.Join(parts, " "))
		}
	}
	return formatted
}

func formatAddressText(addr gjson.Result, withCountry bool) string {
	var parts []string
	for _, line := range addr.Get("line").Array() {
		parts = append(parts, line.String())
	}
	for _, key := range []string{"city", "state", "postalCode"} {
		if v := addr.Get(key).String(); v != "" {
			parts = append(parts, v)
		}
	}
	if withCountry {
		if v := addr.Get("country").String(); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// birthYearAndAge derives the birth year and a coarse age (calendar years,
// birthday ignored, matching the upstream display semantics) from a FHIR
// date. Returns zeros when the date is absent or unparsable.
func birthYearAndAge(birthDate string) (int, int) {
	if len(birthDate) < 4 {
		return 0, 0
	}
	year, err := strconv.Atoi(birthDate[:4])
	if err != nil {
		return 0, 0
	}
	return year, time.Now().Year() - year
}

func boolPtr(res gjson.Result) *bool {
	if !res.Exists() {
		return nil
	}
	b := res.Bool()
	return &b
}

func rawOr(res gjson.Result, fallback string) json.RawMessage {
	if res.Exists() {
		return json.RawMessage(res.Raw)
	}
	return json.RawMessage(fallback)
}
