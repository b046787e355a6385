package portal

// Login page.
const (
	SelUsername = "#txt_username"
	SelPassword = "#txt_password"

	// PostLoginPath is the page the SSO lands on once CAPTCHA and OTP are accepted.
	PostLoginPath = "/webfrmdd.aspx"

	SelEWBMISButton = `input[name="btnewbmis"]`
)

// GSTIN-wise report page.
const (
	SelRadioInward  = "#ctl00_ContentPlaceHolder1_RBL_OutInward_1"
	SelRadioOutward = "#ctl00_ContentPlaceHolder1_RBL_OutInward_0"
	SelGSTIN        = `input[name="ctl00$ContentPlaceHolder1$txt_gstin"]`
	SelFromDate     = "#ctl00_ContentPlaceHolder1_txtDateFrom"
	SelToDate       = "#ctl00_ContentPlaceHolder1_txtDateTo"
	SelState        = `select[name="ctl00$ContentPlaceHolder1$ddl_gstinstcode"]`
	SelGo           = `input[name="ctl00$ContentPlaceHolder1$btnsbmt"][value="GO"]`
	SelExport       = "#ctl00_ContentPlaceHolder1_btn_export_excel"

	DateLayout = "02/01/2006"
)

// Bill print page.
const (
	SelDistance      = "#ctl00_ContentPlaceHolder1_lblApxDistDetails"
	SelTransportType = "#ctl00_ContentPlaceHolder1_lblTransType"
	SelGeneratedBy   = "#ctl00_ContentPlaceHolder1_txtGenBy"
	SelSupplyTo      = "#ctl00_ContentPlaceHolder1_txtSypplyTo"
	SelItemTable     = "#ctl00_ContentPlaceHolder1_GVItemList"
	SelIRNButton     = "#ctl00_ContentPlaceHolder1_btn_irn"
	SelIRNTable      = "#ctl00_ContentPlaceHolder1_grd_items"
)

// Toll report page.
const SelTollTable = "#ctl00_ContentPlaceHolder1_grd_tolldtls"

// Item table column titles as the portal renders them.
const (
	ColHSN             = "HSN Code"
	ColQuantity        = "Quantity"
	ColUnit            = "Unit"
	ColPrimaryAmount   = "Taxable Amount Rs."
	ColAlternateAmount = "Taxable Amount(Rs)"
)

func directionRadio(inward bool) string {
	if inward {
		return SelRadioInward
	}
	return SelRadioOutward
}
