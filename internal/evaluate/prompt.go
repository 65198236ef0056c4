// Package evaluate scores search candidates with an LLM and decodes the
// labeled free-text reply into a typed Evaluation.
package evaluate

import (
	"fmt"
	"strings"

	"github.com/sells-group/contacts-cli/internal/model"
)

const promptTemplate = `Evalúa este perfil de LinkedIn para decisiones financieras en la empresa "%[1]s":

URL: %[2]s
Título: %[3]s
Snippet: %[4]s
Empresa buscada: %[1]s

Evalúa:
1. ¿Trabaja ACTUALMENTE en "%[1]s"? (crítico)
2. ¿Su rol actual es de finanzas/contabilidad? (importante; roles en inglés como finance también cuentan)
3. ¿Tiene poder de decisión financiera? (importante)
4. ¿Nivel de seniority? (relevante)

Scoring:
- 9-10: CEO/CFO actual de la empresa
- 7-8: Finance Director/Controller actual
- 5-6: Finance Manager/Analyst actual
- 3-4: Finance junior o ex-empleado
- 1-2: No relevante o no trabaja en la empresa

Responde exactamente en este formato:
SCORE: X
EMPRESA_ACTUAL: Sí/No/Incierto
ROL_FINANZAS: Sí/No/Incierto
EXPLICACION: [breve explicación]`

// BuildPrompt renders the scoring prompt for a candidate.
func BuildPrompt(c model.CandidateProfile) string {
	return fmt.Sprintf(promptTemplate,
		oneLine(c.BusinessName),
		oneLine(c.ProfileURL),
		oneLine(c.Title),
		oneLine(c.Snippet),
	)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
