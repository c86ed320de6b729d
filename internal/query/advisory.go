package query

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kyleking/sqlpilot/internal/llm"
	"github.com/kyleking/sqlpilot/internal/types"
)

// Security risk levels reported in a Verdict
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

const advisoryPrompt = `Review the SQL statement from the user. Reply with one JSON object and nothing else:
{"valid": bool, "type": "select|insert|update|delete|other", "is_destructive": bool,
 "security_risk": "low|medium|high", "message": string, "suggestions": [string]}`

// Verdict is the agent's opinion of a statement. It is shown to users and never
// used to authorize execution.
type Verdict struct {
	Valid         bool            `json:"valid"          yaml:"valid"`
	Type          types.QueryType `json:"type"           yaml:"type"`
	IsDestructive bool            `json:"is_destructive" yaml:"is_destructive"`
	SecurityRisk  string          `json:"security_risk"  yaml:"security_risk"`
	Message       string          `json:"message"        yaml:"message"`
	Suggestions   []string        `json:"suggestions"    yaml:"suggestions"`
}

// conservativeVerdict is returned whenever no usable verdict was produced
func conservativeVerdict(message string) *Verdict {
	return &Verdict{
		Valid:         false,
		Type:          types.QueryTypeUnknown,
		IsDestructive: true,
		SecurityRisk:  RiskHigh,
		Message:       message,
		Suggestions:   []string{},
	}
}

// rawVerdict uses pointers so missing required fields can be told apart from zero values
type rawVerdict struct {
	Valid         *bool    `json:"valid"`
	Type          *string  `json:"type"`
	IsDestructive *bool    `json:"is_destructive"`
	SecurityRisk  *string  `json:"security_risk"`
	Message       string   `json:"message"`
	Suggestions   []string `json:"suggestions"`
}

// ValidateAdvisory asks the agent to review sql. Agent failures and replies that
// are not the expected JSON object yield a conservative verdict.
func (g *Generator) ValidateAdvisory(ctx context.Context, sql string) *Verdict {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return conservativeVerdict("statement is empty")
	}

	if g.agent == nil {
		return conservativeVerdict("no prompting agent configured")
	}

	opts := g.chatOptions
	opts.JSON = true

	reply, err := g.agent.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: advisoryPrompt},
		{Role: llm.RoleUser, Content: sql},
	}, opts)
	if err != nil {
		g.logger.WithError(err).Warn("advisory validation failed")
		return conservativeVerdict("prompting agent failed: " + err.Error())
	}

	verdict, ok := parseVerdict(reply)
	if !ok {
		g.logger.WithField("reply_length", len(reply)).Debug("unparseable advisory verdict")
		return conservativeVerdict("could not parse the agent's verdict")
	}

	return verdict
}

// parseVerdict decodes the first JSON object in reply
func parseVerdict(reply string) (*Verdict, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")

	if start < 0 || end <= start {
		return nil, false
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, false
	}

	if raw.Valid == nil || raw.Type == nil || raw.SecurityRisk == nil {
		return nil, false
	}

	v := &Verdict{
		Valid:         *raw.Valid,
		Type:          normalizeType(*raw.Type),
		IsDestructive: true,
		SecurityRisk:  normalizeRisk(*raw.SecurityRisk),
		Message:       raw.Message,
		Suggestions:   raw.Suggestions,
	}

	if raw.IsDestructive != nil {
		v.IsDestructive = *raw.IsDestructive
	}

	if v.Suggestions == nil {
		v.Suggestions = []string{}
	}

	return v, true
}

func normalizeType(s string) types.QueryType {
	switch qt := types.QueryType(strings.ToLower(strings.TrimSpace(s))); qt {
	case types.QueryTypeSelect, types.QueryTypeInsert, types.QueryTypeUpdate,
		types.QueryTypeDelete, types.QueryTypeOther:
		return qt
	default:
		return types.QueryTypeUnknown
	}
}

// normalizeRisk maps anything outside low/medium/high to high
func normalizeRisk(s string) string {
	switch risk := strings.ToLower(strings.TrimSpace(s)); risk {
	case RiskLow, RiskMedium:
		return risk
	default:
		return RiskHigh
	}
}
