// Package classifier decide se uma mensagem recebida merece resposta.
//
// Keywords é uma heurística determinística por palavras-chave. Qualquer
// implementação de Classifier (um modelo real, por exemplo) pode substituí-la.
package classifier

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

type Classification struct {
	ShouldRespond bool     `json:"shouldRespond"`
	ResponseText  string   `json:"responseText,omitempty"`
	Score         int      `json:"score"`
	Tier          Tier     `json:"tier"`
	Signals       []string `json:"signals"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

type rule struct {
	signal  string
	weight  int
	phrases []string
}

var rules = []rule{
	{signal: "purchase_intent", weight: 35, phrases: []string{"comprar", "contratar", "fechar", "assinar", "quero o plano"}},
	{signal: "pricing", weight: 30, phrases: []string{"preco", "valor", "quanto custa", "orcamento", "mensalidade"}},
	{signal: "meeting", weight: 25, phrases: []string{"reuniao", "agendar", "demonstracao", "demo", "ligacao"}},
	{signal: "urgency", weight: 20, phrases: []string{"urgente", "hoje", "agora", "rapido", "o quanto antes"}},
	{signal: "question", weight: 15, phrases: []string{"duvida", "informacao", "informacoes", "como funciona"}},
	{signal: "greeting", weight: 10, phrases: []string{"oi", "ola", "bom dia", "boa tarde", "boa noite"}},
}

var optOut = []string{"parar", "sair", "descadastrar", "cancelar inscricao", "nao quero", "stop"}

const (
	hotScore      = 70
	warmScore     = 40
	questionBonus = 5
)

var replies = map[Tier]string{
	TierHot:  "Ótimo! Um especialista vai falar com você em instantes para acertar os detalhes.",
	TierWarm: "Obrigado pelo contato! Posso te enviar mais informações sobre planos e valores?",
	TierCold: "Olá! Como posso ajudar?",
}

type Keywords struct{}

func NewKeywords() *Keywords {
	return &Keywords{}
}

var _ Classifier = (*Keywords)(nil)

func (k *Keywords) Classify(ctx context.Context, text string) (Classification, error) {
	normalized := normalize(text)
	if normalized == "" {
		return Classification{Tier: TierCold, Signals: []string{}}, nil
	}
	padded := " " + normalized + " "

	for _, phrase := range optOut {
		if strings.Contains(padded, " "+phrase+" ") {
			return Classification{Tier: TierCold, Signals: []string{"opt_out"}}, nil
		}
	}

	c := Classification{Signals: []string{}}
	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(padded, " "+phrase+" ") {
				c.Score += r.weight
				c.Signals = append(c.Signals, r.signal)
				break
			}
		}
	}
	if strings.Contains(text, "?") {
		c.Score += questionBonus
		c.Signals = append(c.Signals, "question_mark")
	}
	c.Score = min(max(c.Score, 0), 100)
	c.Tier = TierFor(c.Score)

	// mensagem sem nenhum sinal não recebe resposta automática
	if len(c.Signals) > 0 {
		c.ShouldRespond = true
		c.ResponseText = replies[c.Tier]
	}
	return c, nil
}

func TierFor(score int) Tier {
	switch {
	case score >= hotScore:
		return TierHot
	case score >= warmScore:
		return TierWarm
	default:
		return TierCold
	}
}

// normalize remove acentos e pontuação e colapsa espaços.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
