// Package sefaz contiene catálogos y validaciones alineados al Manual de
// Orientação do Contribuinte (MOC) da NF-e, layout 4.00.
package sefaz

// =============================================================================
// Tabela de UF - código IBGE da unidade federada (cUF)
// =============================================================================

// DefaultUFCode se usa cuando la UF no existe en la tabla (SP).
const DefaultUFCode = "35"

var ufCodes = map[string]string{
	"AC": "12", "AL": "27", "AP": "16", "AM": "13", "BA": "29", "CE": "23",
	"DF": "53", "ES": "32", "GO": "52", "MA": "21", "MT": "51", "MS": "50",
	"MG": "31", "PA": "15", "PB": "25", "PR": "41", "PE": "26", "PI": "22",
	"RJ": "33", "RN": "24", "RS": "43", "RO": "11", "RR": "14", "SC": "42",
	"SP": "35", "SE": "28", "TO": "17",
}

// UFCode devuelve el código IBGE de la UF. UF desconocida o vacía cae en DefaultUFCode.
func UFCode(uf string) string {
	if code, ok := ufCodes[uf]; ok {
		return code
	}
	return DefaultUFCode
}

// IsKnownUF indica si la sigla existe en la tabla.
func IsKnownUF(uf string) bool {
	_, ok := ufCodes[uf]
	return ok
}

// =============================================================================
// Identificación del documento
// =============================================================================

const (
	ModelNFe        = "55" // NF-e
	EmissionNormal  = "1"  // tpEmis: emisión normal
	LayoutVersion   = "4.00"
	AccessKeyPrefix = "NFe"
	Namespace       = "http://www.portalfiscal.inf.br/nfe"

	CountryBrazilCode = "1058"
	CountryBrazilName = "BRASIL"
	NoGTIN            = "SEM GTIN"
)

const (
	EnvironmentProduction   = "1" // tpAmb: produção
	EnvironmentHomologation = "2" // tpAmb: homologação
)

// =============================================================================
// Códigos de situación devueltos por la SEFAZ (cStat)
// =============================================================================

const (
	StatusAuthorized         = "100" // Autorizado o uso da NF-e
	StatusCancelHomologated  = "101" // Cancelamento de NF-e homologado
	StatusVoidHomologated    = "102" // Inutilização de número homologado
	StatusLotReceived        = "103" // Lote recebido com sucesso
	StatusLotProcessed       = "104" // Lote processado
	StatusLotProcessing      = "105" // Lote em processamento
	StatusServiceRunning     = "107" // Serviço em operação
	StatusDenied             = "110" // Uso denegado
	StatusEventRegistered    = "135" // Evento registrado e vinculado a NF-e
	StatusAuthorizedLate     = "150" // Autorizado fora de prazo
	StatusCancelLate         = "155" // Cancelamento homologado fora de prazo
	StatusDeniedIrregularEmi = "301" // Uso denegado: irregularidade fiscal do emitente
	StatusDeniedIrregularDst = "302" // Uso denegado: irregularidade fiscal do destinatário
	StatusDeniedNotEnabled   = "303" // Uso denegado: destinatário não habilitado na UF
	StatusDeniedRegistered   = "205" // NF-e está denegada na base de dados da SEFAZ
	StatusNotInDatabase      = "217" // NF-e não consta na base de dados da SEFAZ
)

// AuthorizationCodes códigos que la respuesta de envío trata como éxito.
var AuthorizationCodes = map[string]bool{
	StatusAuthorized:        true,
	StatusCancelHomologated: true,
	StatusAuthorizedLate:    true,
}

// DenialCodes códigos de denegación de uso (irregularidad del emisor o destinatario).
var DenialCodes = map[string]bool{
	StatusDenied:             true,
	StatusDeniedRegistered:   true,
	StatusDeniedIrregularEmi: true,
	StatusDeniedIrregularDst: true,
	StatusDeniedNotEnabled:   true,
}

// PendingCodes respuestas de consulta que todavía no definen la situación.
var PendingCodes = map[string]bool{
	StatusLotReceived:   true,
	StatusLotProcessed:  true,
	StatusLotProcessing: true,
	StatusNotInDatabase: true,
}

// CancellationCodes códigos con los que la SEFAZ acepta un evento de cancelación.
var CancellationCodes = map[string]bool{
	StatusCancelHomologated: true,
	StatusEventRegistered:   true,
	StatusCancelLate:        true,
}

// =============================================================================
// Valores por defecto del layout
// =============================================================================

const (
	CRTSimples         = "1" // Simples Nacional
	CRTSimplesExcesso  = "2" // Simples Nacional - excesso de sublimite
	CRTRegimeNormal    = "3" // Regime Normal
	PISCOFINSOutras    = "99"
	ModFreteSemFrete   = "9"
	IndPagVista        = "0"
	IndTotCompoeTotal  = "1"
	DefaultEnvironment = EnvironmentHomologation
)
