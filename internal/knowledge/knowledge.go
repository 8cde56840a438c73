// Package knowledge answers clinic questions from a local JSON knowledge
// base: procedures, the doctor's credentials, address, opening hours,
// insurance policy, and payment terms.
//
// FindRelevantInfo is a retrieval step, not a generator: it picks the
// formatted block that matches the patient's question and hands it to the
// reply composer, which does the actual wording. Greetings and small talk
// return nothing so the composer answers naturally.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/clinicbot/margot/internal/models"
)

// Procedure is one entry of the "procedures" list.
type Procedure struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details"`
	// Variations are colloquial names patients use ("lipo", "silicone").
	Variations []string `json:"variations"`
}

// Address is the clinic's street address.
type Address struct {
	Street         string `json:"street"`
	Neighborhood   string `json:"neighborhood"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zip_code"`
	ReferencePoint string `json:"reference_point"`
}

// ClinicInfo holds general clinic facts.
type ClinicInfo struct {
	Address      Address           `json:"address"`
	OpeningHours map[string]string `json:"opening_hours"`
	Phone        string            `json:"phone"`
	Links        map[string]string `json:"links"`
	Insurance    string            `json:"insurance_policy"`
	Payment      string            `json:"payment_terms"`
	ConsultPrice string            `json:"consultation_price"`
}

// Graduation is the doctor's medical degree.
type Graduation struct {
	University string `json:"university"`
	Year       int    `json:"year"`
}

// PostGraduation is one specialization entry.
type PostGraduation struct {
	Specialty      string `json:"specialty"`
	Institution    string `json:"institution"`
	CompletionYear int    `json:"completion_year"`
	RQE            string `json:"rqe"`
}

// DoctorInfo holds the doctor's credentials and experience.
type DoctorInfo struct {
	Name              string           `json:"name"`
	BioSummary        string           `json:"bio_summary"`
	Philosophy        string           `json:"philosophy"`
	Graduation        Graduation       `json:"graduation"`
	PostGraduation    []PostGraduation `json:"post_graduation"`
	ExperienceSummary map[string]string `json:"experience_summary"`
}

// Base is the loaded knowledge base with its lookup indexes.
type Base struct {
	Procedures []Procedure      `json:"procedures"`
	Clinic     ClinicInfo       `json:"clinic_info"`
	Doctor     DoctorInfo       `json:"doctor_info"`
	Scheduling *SchedulingRules `json:"scheduling_rules"`

	// variation -> canonical lowercase procedure name.
	variationIndex map[string]string
	// canonical lowercase name -> procedure.
	procedureIndex map[string]*Procedure
}

// Load reads and indexes the knowledge base file.
func Load(path string) (*Base, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	var b Base
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base %s: %w", path, err)
	}
	if len(b.Procedures) == 0 {
		return nil, fmt.Errorf("knowledge base %s holds no procedures", path)
	}
	b.buildIndexes()
	slog.Info("Knowledge base loaded", "path", path, "procedures", len(b.Procedures), "variations", len(b.variationIndex))
	return &b, nil
}

func (b *Base) buildIndexes() {
	b.procedureIndex = make(map[string]*Procedure, len(b.Procedures))
	b.variationIndex = make(map[string]string)
	for i := range b.Procedures {
		p := &b.Procedures[i]
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		b.procedureIndex[name] = p
		for _, v := range p.Variations {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				b.variationIndex[v] = name
			}
		}
	}
}

// DoctorYears returns the graduation year and the plastic-surgery
// specialization year, with the clinic's historical defaults when the base
// does not carry them.
func (b *Base) DoctorYears() (formation, plasticSpec int) {
	formation, plasticSpec = 1998, 2004
	if b.Doctor.Graduation.Year != 0 {
		formation = b.Doctor.Graduation.Year
	}
	for _, pg := range b.Doctor.PostGraduation {
		s := strings.ToLower(pg.Specialty)
		if (strings.Contains(s, "plástica") || strings.Contains(s, "plastica")) && pg.CompletionYear != 0 {
			plasticSpec = pg.CompletionYear
			break
		}
	}
	return formation, plasticSpec
}

var greetings = map[string]bool{
	"oi": true, "ola": true, "olá": true,
	"bom dia": true, "boa tarde": true, "boa noite": true,
	"tudo bem": true, "tudo bom": true, "tudo certo": true,
	"ok": true, "obrigado": true, "obrigada": true,
	"grato": true, "grata": true, "valeu": true,
	"de nada": true, "igualmente": true,
	"td bem": true, "td bom": true, "obg": true, "vlw": true,
}

var punctOnlyRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

var contextualWords = []string{"disso", "dele", "dela", "nisso", "nele", "nesse", "deste", "desta", "isso"}
var contextualPhrases = []string{
	"nesse procedimento", "sobre isso", "e os diferenciais", "mais detalhes",
	"e quanto a", "como funciona", "fale mais", "detalhes sobre",
}

func isContextual(query string) bool {
	words := strings.Fields(query)
	for _, w := range words {
		for _, k := range contextualWords {
			if w == k {
				return true
			}
		}
	}
	for _, p := range contextualPhrases {
		if strings.Contains(query, p) {
			return true
		}
	}
	return false
}

// FindRelevantInfo returns the formatted knowledge block matching the
// query, or "" when the query needs no retrieval (greetings, off-topic
// chat). The history lets follow-ups like "e quanto custa isso?" resolve
// against the procedure discussed in the previous turns.
func (b *Base) FindRelevantInfo(query string, history []models.Turn) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ""
	}

	if isContextual(q) {
		if name := b.topicFromHistory(history); name != "" {
			if p, ok := b.procedureIndex[name]; ok {
				slog.Debug("Base.FindRelevantInfo: topic resolved from history", "procedure", name)
				return b.formatProcedure(p)
			}
		}
	}

	if greetings[strings.TrimSpace(punctOnlyRe.ReplaceAllString(q, ""))] {
		return ""
	}

	if p := b.findProcedure(q); p != nil {
		return b.formatProcedure(p)
	}

	hasAny := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(q, k) {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny("experiência", "experiente", "formação", "formou", "currículo", "qualificação", "prêmio", "sobre o dr", "sobre ele", "quem é"):
		return b.formatDoctor()
	case hasAny("endereço", "onde fica", "localização", "rua", "consultório"):
		return b.formatAddress()
	case hasAny("horário", "funcionamento", "aberto", "que horas", "horarios"):
		return b.formatOpeningHours()
	case hasAny("instagram", "insta", "youtube", "linkedin", "lattes", "site", "rede social", "redes sociais", "perfil"):
		return b.formatLinks()
	case hasAny("convênio", "convenio", "plano de saúde", "plano medico", "seguro saude"):
		return b.Clinic.Insurance
	case hasAny("pagamento", "pagar", "parcela", "financia"):
		return b.Clinic.Payment
	case hasAny("quanto custa", "valor", "preço", "custo", "orçamento", "orcamento"):
		return b.Clinic.ConsultPrice
	case hasAny("procedimentos", "cirurgias", "quais", "lista", "serviços", "opções") && hasAny("faz", "realiza", "oferece", "tem", "disponíveis", "quais", "lista"):
		return b.formatProcedureList()
	}
	return ""
}

// findProcedure matches the query against procedure names and their
// colloquial variations, preferring longer (more specific) matches.
func (b *Base) findProcedure(q string) *Procedure {
	type hit struct {
		name string
		size int
	}
	var best hit
	for name := range b.procedureIndex {
		needle := strings.TrimSpace(parenRe.ReplaceAllString(name, " "))
		for _, part := range strings.Split(needle, "/") {
			part = strings.TrimSpace(part)
			if len(part) > 3 && strings.Contains(q, part) && len(part) > best.size {
				best = hit{name: name, size: len(part)}
			}
		}
	}
	for variation, name := range b.variationIndex {
		if strings.Contains(q, variation) && len(variation) > best.size {
			best = hit{name: name, size: len(variation)}
		}
	}
	if best.name == "" {
		return nil
	}
	return b.procedureIndex[best.name]
}

var parenRe = regexp.MustCompile(`\s*\([^)]*\)\s*`)

// topicFromHistory walks the history backwards looking for the procedure
// the assistant last talked about.
func (b *Base) topicFromHistory(history []models.Turn) string {
	names := make([]string, 0, len(b.procedureIndex))
	for name := range b.procedureIndex {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "assistant" {
			continue
		}
		reply := strings.ToLower(history[i].Content)
		for _, name := range names {
			needle := strings.TrimSpace(parenRe.ReplaceAllString(name, " "))
			if len(needle) > 3 && strings.Contains(reply, needle) {
				return name
			}
		}
	}
	return ""
}

func (b *Base) formatProcedure(p *Procedure) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Detalhes sobre %s**\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&sb, "**Descrição:** %s\n", p.Description)
	}
	if attention, ok := p.Details["restricao_importante"]; ok && attention != "" {
		fmt.Fprintf(&sb, "**Atenção Importante:** %s\n", attention)
	}
	extras := make([]string, 0, len(p.Details))
	for key, value := range p.Details {
		if key == "restricao_importante" || value == "" {
			continue
		}
		title := strings.ReplaceAll(strings.TrimPrefix(key, "diferenciais_"), "_", " ")
		extras = append(extras, fmt.Sprintf("- %s: %s", capitalize(title), value))
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		sb.WriteString("**Diferenciais e Informações Adicionais:**\n")
		sb.WriteString(strings.Join(extras, "\n"))
	}
	return strings.TrimSpace(sb.String())
}

func (b *Base) formatProcedureList() string {
	var names []string
	for _, p := range b.Procedures {
		if p.Name != "" {
			names = append(names, "- "+p.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "**Principais Procedimentos Realizados:**\n" + strings.Join(names, "\n")
}

// AddressLine returns the clinic address as a single short line, for use
// inside confirmation messages. Empty when no address is configured.
func (b *Base) AddressLine() string {
	a := b.Clinic.Address
	line := a.Street
	cityState := a.City
	if a.State != "" {
		if cityState != "" {
			cityState += "/"
		}
		cityState += a.State
	}
	if cityState != "" {
		if line != "" {
			line += " – "
		}
		line += cityState
	}
	return line
}

func (b *Base) formatAddress() string {
	a := b.Clinic.Address
	var parts []string
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	if a.Neighborhood != "" {
		parts = append(parts, a.Neighborhood)
	}
	cityState := a.City
	if a.State != "" {
		if cityState != "" {
			cityState += " - "
		}
		cityState += a.State
	}
	if cityState != "" {
		parts = append(parts, cityState)
	}
	if a.ZipCode != "" {
		parts = append(parts, "CEP: "+a.ZipCode)
	}
	if len(parts) == 0 {
		return ""
	}
	out := "Endereço da Clínica: " + strings.Join(parts, ", ")
	if a.ReferencePoint != "" {
		out += " (Referência: " + a.ReferencePoint + ")"
	}
	return out
}

var weekdayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

var weekdayNames = map[string]string{
	"monday":    "Segunda-feira",
	"tuesday":   "Terça-feira",
	"wednesday": "Quarta-feira",
	"thursday":  "Quinta-feira",
	"friday":    "Sexta-feira",
	"saturday":  "Sábado",
	"sunday":    "Domingo",
}

func (b *Base) formatOpeningHours() string {
	hours := b.Clinic.OpeningHours
	if len(hours) == 0 {
		return ""
	}
	var lines []string
	for _, day := range weekdayOrder {
		if h, ok := hours[day]; ok && h != "" {
			lines = append(lines, weekdayNames[day]+": "+h)
		}
	}
	if notes, ok := hours["notes"]; ok && notes != "" {
		lines = append(lines, notes)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Horário de Funcionamento:\n" + strings.Join(lines, "\n")
}

func (b *Base) formatLinks() string {
	if len(b.Clinic.Links) == 0 {
		return ""
	}
	keys := make([]string, 0, len(b.Clinic.Links))
	for k := range b.Clinic.Links {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(k), b.Clinic.Links[k]))
	}
	return "Links e Redes Sociais:\n" + strings.Join(lines, "\n")
}

// capitalize upper-cases the first rune only.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func (b *Base) formatDoctor() string {
	d := b.Doctor
	var lines []string
	if d.Name != "" {
		lines = append(lines, "**Sobre "+d.Name+"**")
	}
	if d.BioSummary != "" {
		lines = append(lines, d.BioSummary)
	}
	if d.Graduation.University != "" {
		lines = append(lines, fmt.Sprintf("- Graduação: Medicina pela %s (Ano: %d).", d.Graduation.University, d.Graduation.Year))
	}
	for _, pg := range d.PostGraduation {
		line := fmt.Sprintf("- %s (%s, Ano: %d", pg.Specialty, pg.Institution, pg.CompletionYear)
		if pg.RQE != "" {
			line += ", RQE: " + pg.RQE
		}
		lines = append(lines, line+").")
	}
	if years, ok := d.ExperienceSummary["years"]; ok && years != "" {
		lines = append(lines, "- Tempo de Atuação: "+years+".")
	}
	if vol, ok := d.ExperienceSummary["operated_patients_surgeries"]; ok && vol != "" {
		lines = append(lines, "- Volume Cirúrgico: "+vol+".")
	}
	if d.Philosophy != "" {
		lines = append(lines, "- Filosofia de Atendimento: "+d.Philosophy)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
