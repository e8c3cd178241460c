/*
Command srcid associates the sources of a gamma-ray point source catalogue
with counterparts of known source classes.

Contents

Version 2.0

  Program overview
  Command line usage
  Configuring file locations
  Class files
  Output files
  Algorithm outline


Program overview

Input is a LAT point source catalogue in FITS format.  Output is the same
catalogue extended with the counterparts found for each source, and a
consolidated catalogue giving every source a single list of counterparts
ranked by probability.

The probability of each association is computed by the external program
gtsrcid, run once per source class.  A source class names a counterpart
catalogue, pulsars or blazars for example, and the method, prior and
selection criteria gtsrcid should use for it.  Srcid prepares the gtsrcid
parameters for each class, runs it, and reads back its result table.

Sample run:

   srcid gll_psc_v02.fit

With the built in classes and a catalogue repository in $FERMI_CAT this
writes srcid.fits, srcid-lat.fits, srcid.reg and a log file per class.
Classes whose counterpart catalogue is not in the repository are skipped.
A class for which gtsrcid fails is logged and skipped; the run continues
with the remaining classes.


Command line usage

Invoking the program without command line arguments (or with invalid
arguments) shows this usage prompt.

  Usage: srcid [options] <LATCatalogue>    identify counterparts of sources
         srcid <LATCatalogue> [options]
         srcid -h                          display help and quick reference
         srcid -v                          display version and copyright

  Options:
         -C <class-directory>
         -c <config-file>

The help information lists the built in classes.


Configuring file locations

Counterpart catalogues are looked for in a catalogue repository.  The
repository is the first existing directory of $SRCID_CAT, $FERMI_CAT,
$GLAST_CAT and /project-data/glast/cat.  If none exists srcid stops
before any class is processed.

Class files are built into the program.  Use -C to run the classes of a
directory instead.

Everything else is set in an optional YAML configuration file, srcid.yaml,
read from the current directory or from the parent of the -C directory,
or from the file given with -c.  A file given with -c must exist.  Each
setting can also be given as an environment variable, SRCID_ followed by
the key in upper case with dots replaced by underscores, for example

	SRCID_OUTPUT_LEDGER=runs.db srcid gll_psc_v02.fit

Keys and defaults:

	catalogues.env       [SRCID_CAT, FERMI_CAT, GLAST_CAT]
	catalogues.default   /project-data/glast/cat
	classes.dir          built in classes
	engine.command       gtsrcid
	engine.dir           current directory
	engine.log           gtsrcid.log
	engine.srcPrefix     LAT
	engine.srcPosError   0
	engine.chatter       1
	engine.mode          ql
	output.widened       srcid.fits
	output.consolidated  srcid-lat.fits
	output.overlay       srcid.reg, empty for none
	output.ledger        empty for none
	output.metrics       empty for none
	output.positions     true
	log.level            info
	log.format           console, or json


Class files

A class file is a YAML mapping.  Catid and catname are required.

	catid: PUL
	catname: pulsar.fits
	title: ATNF pulsar catalogue
	prob_method: PROB_POST
	prob_prior: 0.034
	prob_thres: 0.5
	max_counterparts: 2
	new_quantity:
	  - "EDOTD2 = @PUL_EDOT / (@PUL_DIST * @PUL_DIST)"
	selection:
	  - "@PUL_EDOTD2 > 1e33"

Catid is the class identifier.  It prefixes the class columns in the output
and names the gtsrcid result and log files.  Catname is the counterpart
catalogue, relative to the repository unless absolute.  Up to nine derived
quantities and nine selections may be given.  In them, columns of the
source catalogue are referenced as @LAT_<column> and columns of the
counterpart catalogue as @<catid>_<column>.  Srcid marks these references
for gtsrcid before running it.

Other keys, with defaults:

	prob_method          PROB_POST
	prob_prior           0.01, a number or an expression, passed as is
	prob_thres           0.5
	max_counterparts     1
	figure_of_merit      none
	position_error       1/3600 degree
	lat_position_error   0
	density_map          none
	chatter              1
	reference, url       shown in the reference table
	verbose, debug       false


Output files

srcid.fits is the source catalogue with, for each class and counterpart
rank k, the columns ID_<catid>_NAME_<k> and ID_<catid>_PROB_<k>, and with
output.positions also ID_<catid>_RA_<k>, ID_<catid>_DEC_<k> and
ID_<catid>_ANGSEP_<k>.

srcid-lat.fits has two extensions.  LAT_POINT_SOURCE_CATALOG is the source
catalogue with the class columns replaced by ID_Number, the number of
counterparts of the source, and the arrays ID_Name, ID_Probability, ID_RA,
ID_DEC, ID_Angsep and ID_Catalog.  Array length is the largest number of
counterparts of any source.  ID_CATALOGS lists the classes processed;
ID_Catalog refers to its Number column.

srcid.reg is a DS9 region file showing each source error region and its
counterparts.

Each output carries the header keyword SRCIDRUN, identifying the run.  With
output.ledger set, the run, the outcome of each class, and the consolidated
counterparts are also recorded in an SQLite database under this
identifier.  With output.metrics set, run counts are written in the
Prometheus text format.


Algorithm outline

1.  For each class, in file name order, gtsrcid writes a result table
<catid>.fits.  Each result row identifies a source row and a counterpart
rank, and gives the counterpart name and probability.

2.  The rows are attached to the source catalogue as one column group per
rank.  A result row addressing a source row outside the catalogue is
dropped.  Counterpart names are taken from the identifier column of the
result, or a name column, or are set to NoName.

3.  After all classes, the counterparts of each source are collected from
all class columns and sorted by decreasing probability.  Equal
probabilities keep class order.

-------------
Public domain.
*/
package main
