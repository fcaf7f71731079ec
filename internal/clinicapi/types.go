package clinicapi

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type ChangePasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"novaSenha"`
}

// Person is the wire shape shared by patients, users and the profile.
type Person struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"nome"`
	CPF        string `json:"cpf"`
	Phone      string `json:"whatsapp"`
	Email      string `json:"email"`
	Password   string `json:"senha,omitempty"`
	Street     string `json:"rua"`
	Number     string `json:"numero"`
	District   string `json:"bairro"`
	City       string `json:"cidade"`
	PostalCode string `json:"cep"`
	Notes      string `json:"observacoes,omitempty"`
	Role       string `json:"role,omitempty"`
}

type ServiceType struct {
	ID              string  `json:"id,omitempty"`
	Description     string  `json:"descricao"`
	DefaultPrice    float64 `json:"valorPadrao"`
	DefaultDuration int     `json:"duracaoPadrao"`
}

type ExpenseType struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"descricao"`
	Frequency   string `json:"frequencia"`
}

type PatientRef struct {
	ID   string `json:"id"`
	Name string `json:"nome,omitempty"`
}

type ServiceTypeRef struct {
	ID          string `json:"id"`
	Description string `json:"descricao,omitempty"`
}

type ExpenseTypeRef struct {
	ID          string `json:"id"`
	Description string `json:"descricao,omitempty"`
}

// Appointment dates travel as the API formats them
// (e.g. "2026-03-14T08:00" on write, ISO-8601 on read).
type Appointment struct {
	ID            string          `json:"id,omitempty"`
	Patient       *PatientRef     `json:"paciente"`
	ServiceType   *ServiceTypeRef `json:"tipoAtendimento"`
	DateTime      string          `json:"dataHora"`
	Duration      int             `json:"duracao"`
	Price         float64         `json:"valor"`
	PaymentStatus string          `json:"statusPagamento"`
	Recurring     bool            `json:"recorrente"`
	Repetitions   int             `json:"repeticoes"`
}

type Expense struct {
	ID            string          `json:"id,omitempty"`
	Description   string          `json:"descricao"`
	Type          *ExpenseTypeRef `json:"tipo"`
	Amount        float64         `json:"valor"`
	Date          string          `json:"data"`
	PaymentStatus string          `json:"statusPagamento"`
}

type FinancialSummary struct {
	TotalIncome  float64       `json:"totalReceitas"`
	TotalExpense float64       `json:"totalDespesas"`
	Balance      float64       `json:"saldo"`
	Income       []Appointment `json:"receitas"`
	Expenses     []Expense     `json:"despesas"`
}
