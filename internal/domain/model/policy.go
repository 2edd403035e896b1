package model

// Policy — запись страхового полиса из датасета "policies".
// Каждый полис принадлежит ровно одному клиенту (ClientID → Client.ID).
type Policy struct {
	// ID — UUID полиса
	ID string `json:"id"`
	// ClientID — UUID клиента-владельца (foreign key в Client.ID)
	ClientID string `json:"clientId"`
	// AmountInsured — страховая сумма
	AmountInsured float64 `json:"amountInsured"`
	// Email — электронная почта, указанная в полисе
	Email string `json:"email"`
	// InceptionDate — дата начала действия полиса (ISO-8601)
	InceptionDate string `json:"inceptionDate"`
	// InstallmentPayment — оплата в рассрочку
	InstallmentPayment bool `json:"installmentPayment"`
}
