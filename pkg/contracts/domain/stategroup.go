package domain

// StateGroup is one of the fixed geographic groupings the portal filters by.
type StateGroup struct {
	Code string
	Name string
}

// SelectStatePlaceholder is the dropdown's "Select State" option. It is never submitted.
const SelectStatePlaceholder = "0"

// StateGroups are the real groups in portal option order.
var StateGroups = []StateGroup{
	{Code: "1", Name: "Andhra_Pradesh_Goa_Karnataka_Telangana"},
	{Code: "2", Name: "Maharashtra"},
	{Code: "3", Name: "Chandigarh_Haryana_HimachalPradesh_JammuKashmir_Punjab_Uttarakhand"},
	{Code: "4", Name: "Jharkhand_UttarPradesh"},
	{Code: "5", Name: "Kerala_Lakshadweep_Puducherry_TamilNadu"},
	{Code: "6", Name: "DadraNagarHaveli_Daman_Diu_Gujarat_MadhyaPradesh_Chhattisgarh"},
	{Code: "7", Name: "Delhi_Rajasthan"},
}
