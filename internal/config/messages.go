package config

// Messages holds every customer-facing text. Placeholders in braces are
// filled by the engine: {bot}, {dealership}, {catalog}, {vehicle},
// {document}, {received}, {offered}, {date}, {time}, {name}, {contact}.
type Messages struct {
	Welcome       string `yaml:"welcome"`
	Menu          string `yaml:"menu"`
	NotUnderstood string `yaml:"not_understood"`
	Declined      string `yaml:"declined"`
	AnswerYesNo   string `yaml:"answer_yes_no"`
	Retry         string `yaml:"retry"`
	Apology       string `yaml:"apology"`
	Human         string `yaml:"human"`
	Catalog       string `yaml:"catalog"`

	ChooseVehicle   string `yaml:"choose_vehicle"`
	VehicleNotFound string `yaml:"vehicle_not_found"`
	ConfirmPurchase string `yaml:"confirm_purchase"`

	AskDownPayment      string `yaml:"ask_down_payment"`
	InvalidAmount       string `yaml:"invalid_amount"`
	AskInstallments     string `yaml:"ask_installments"`
	InvalidInstallments string `yaml:"invalid_installments"`
	AskCPF              string `yaml:"ask_cpf"`
	InvalidCPF          string `yaml:"invalid_cpf"`
	AskBirthDate        string `yaml:"ask_birth_date"`
	InvalidBirthDate    string `yaml:"invalid_birth_date"`
	AskDocument         string `yaml:"ask_document"`
	DocumentReceived    string `yaml:"document_received"`
	DocumentExpected    string `yaml:"document_expected"`
	AskEmployment       string `yaml:"ask_employment"`
	InvalidEmployment   string `yaml:"invalid_employment"`
	ConfirmFinance      string `yaml:"confirm_finance"`

	AskTradeWanted   string `yaml:"ask_trade_wanted"`
	AskTradeModel    string `yaml:"ask_trade_model"`
	InvalidModel     string `yaml:"invalid_model"`
	AskTradeYear     string `yaml:"ask_trade_year"`
	InvalidYear      string `yaml:"invalid_year"`
	AskCondition     string `yaml:"ask_condition"`
	InvalidCondition string `yaml:"invalid_condition"`
	AskPhoto         string `yaml:"ask_photo"`
	PhotoExpected    string `yaml:"photo_expected"`
	ConfirmTrade     string `yaml:"confirm_trade"`
	ConfirmSale      string `yaml:"confirm_sale"`
	ConfirmConsign   string `yaml:"confirm_consign"`

	AskVisitDate     string `yaml:"ask_visit_date"`
	InvalidVisitDate string `yaml:"invalid_visit_date"`
	AskVisitTime     string `yaml:"ask_visit_time"`
	InvalidVisitTime string `yaml:"invalid_visit_time"`
	AskVisitName     string `yaml:"ask_visit_name"`
	InvalidVisitName string `yaml:"invalid_visit_name"`

	ClosingPurchase string `yaml:"closing_purchase"`
	ClosingFinance  string `yaml:"closing_finance"`
	ClosingTrade    string `yaml:"closing_trade"`
	ClosingSale     string `yaml:"closing_sale"`
	ClosingVisit    string `yaml:"closing_visit"`
}

const menuLine = "Você quer comprar, financiar, trocar, vender ou consignar um carro, ou agendar uma visita? Diga \"atendente\" para falar com uma pessoa."

// DefaultMessages returns the built-in Portuguese texts.
func DefaultMessages() Messages {
	return Messages{
		Welcome:       "Olá! Eu sou a {bot}, assistente virtual da {dealership}. Temos estes carros no estoque:\n{catalog}\n\n" + menuLine,
		Menu:          "Como posso ajudar? " + menuLine,
		NotUnderstood: "Desculpe, não entendi. " + menuLine,
		Declined:      "Sem problemas! Se quiser outra coisa é só dizer. " + menuLine,
		AnswerYesNo:   "Responda sim ou não, por favor.",
		Retry:         "Tivemos um problema por aqui. Tente de novo em instantes, por favor.",
		Apology:       "Desculpe, algo deu errado. Pode repetir sua última mensagem?",
		Human:         "Claro! {contact}",
		Catalog:       "Estes são os carros disponíveis:\n{catalog}\n\nQuer saber mais de algum? Diga o nome dele.",

		ChooseVehicle:   "Temos estes carros:\n{catalog}\n\nQual te interessa?",
		VehicleNotFound: "Não encontrei esse carro. Diga o nome de um carro da lista, por favor.",
		ConfirmPurchase: "Ótima escolha: {vehicle}. Confirma a compra à vista? (sim/não)",

		AskDownPayment:      "Ótima escolha: {vehicle}. Qual valor de entrada você pretende dar? (ex.: 5000 ou 5000,00)",
		InvalidAmount:       "Valor inválido. Informe só números, por exemplo 5000 ou 5000,00.",
		AskInstallments:     "Em quantas parcelas você quer pagar?",
		InvalidInstallments: "Informe o número de parcelas, por exemplo 48.",
		AskCPF:              "Para a simulação, me passe seu CPF (só números).",
		InvalidCPF:          "CPF inválido. Envie os 11 dígitos, sem pontos ou traços.",
		AskBirthDate:        "Qual sua data de nascimento? (dd/mm/aaaa)",
		InvalidBirthDate:    "Data inválida. Use o formato dd/mm/aaaa, por exemplo 25/12/1990.",
		AskDocument:         "Agora envie uma foto ou PDF do {document}.",
		DocumentReceived:    "Recebi o {received}. Agora envie o {document}.",
		DocumentExpected:    "Preciso de um arquivo (foto ou PDF) do {document}.",
		AskEmployment:       "Documentos recebidos! Qual sua profissão ou onde você trabalha?",
		InvalidEmployment:   "Me diga sua profissão ou onde você trabalha, por favor.",
		ConfirmFinance:      "Tudo pronto para simular o financiamento do {vehicle}. Confirma? (sim/não)",

		AskTradeWanted:   "Qual carro do estoque você quer na troca?\n{catalog}",
		AskTradeModel:    "Qual o modelo do seu carro? Se preferir, mande modelo, ano e estado de uma vez (ex.: Gol 2018 bom estado).",
		InvalidModel:     "Modelo inválido. Use só letras e números, por exemplo Gol G5.",
		AskTradeYear:     "Qual o ano do carro?",
		InvalidYear:      "Ano inválido. Informe os 4 dígitos, por exemplo 2018.",
		AskCondition:     "Como está o estado do carro?",
		InvalidCondition: "Descreva o estado do carro, por exemplo \"bom estado\".",
		AskPhoto:         "Envie uma foto do carro, ou diga \"pular\".",
		PhotoExpected:    "Preciso de uma foto do carro. Se não tiver agora, diga \"pular\".",
		ConfirmTrade:     "Você quer o {vehicle} e oferece seu {offered}. Confirma a proposta de troca? (sim/não)",
		ConfirmSale:      "Você quer vender seu {offered}. Confirma? (sim/não)",
		ConfirmConsign:   "Você quer deixar seu {offered} em consignação. Confirma? (sim/não)",

		AskVisitDate:     "Que dia você quer nos visitar? (dd/mm/aaaa, ou algo como \"amanhã\")",
		InvalidVisitDate: "Não entendi a data. Use dd/mm/aaaa ou algo como \"amanhã\".",
		AskVisitTime:     "Qual horário? (HH:MM)",
		InvalidVisitTime: "Horário inválido. Use HH:MM, por exemplo 14:30.",
		AskVisitName:     "Qual seu nome completo?",
		InvalidVisitName: "Me diga nome e sobrenome, por favor.",

		ClosingPurchase: "Compra registrada! Um vendedor vai te chamar em breve.",
		ClosingFinance:  "Simulação enviada! Um vendedor vai te chamar em breve com as condições.",
		ClosingTrade:    "Proposta de troca registrada! Um vendedor vai te chamar em breve.",
		ClosingSale:     "Recebemos os dados do seu carro! Um vendedor vai te chamar em breve.",
		ClosingVisit:    "Visita agendada para {date} às {time}. Até lá, {name}!",
	}
}

func (m *Messages) fields() []*string {
	return []*string{
		&m.Welcome, &m.Menu, &m.NotUnderstood, &m.Declined, &m.AnswerYesNo, &m.Retry, &m.Apology, &m.Human, &m.Catalog,
		&m.ChooseVehicle, &m.VehicleNotFound, &m.ConfirmPurchase,
		&m.AskDownPayment, &m.InvalidAmount, &m.AskInstallments, &m.InvalidInstallments, &m.AskCPF, &m.InvalidCPF,
		&m.AskBirthDate, &m.InvalidBirthDate, &m.AskDocument, &m.DocumentReceived, &m.DocumentExpected,
		&m.AskEmployment, &m.InvalidEmployment, &m.ConfirmFinance,
		&m.AskTradeWanted, &m.AskTradeModel, &m.InvalidModel, &m.AskTradeYear, &m.InvalidYear, &m.AskCondition,
		&m.InvalidCondition, &m.AskPhoto, &m.PhotoExpected, &m.ConfirmTrade, &m.ConfirmSale, &m.ConfirmConsign,
		&m.AskVisitDate, &m.InvalidVisitDate, &m.AskVisitTime, &m.InvalidVisitTime, &m.AskVisitName, &m.InvalidVisitName,
		&m.ClosingPurchase, &m.ClosingFinance, &m.ClosingTrade, &m.ClosingSale, &m.ClosingVisit,
	}
}

// fillDefaults restores the built-in text for fields a profile blanked out.
func (m *Messages) fillDefaults() {
	def := DefaultMessages()
	mine, theirs := m.fields(), def.fields()
	for i, f := range mine {
		if *f == "" {
			*f = *theirs[i]
		}
	}
}
