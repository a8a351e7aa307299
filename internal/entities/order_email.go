package entities

type OrderEmailLine struct {
	ProductName string
	Quantity    int
	Days        int
	Amount      string
}

type OrderEmailData struct {
	CustomerName string
	OrderCode    string
	StartDate    string
	EndDate      string
	Lines        []OrderEmailLine
	Total        string
	Deposit      string
	CurrentYear  int
}
